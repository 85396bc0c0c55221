// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package perceptual

import (
	"fmt"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/data/hdf5"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

const (
	// WeightsURL is the URL of the VGG19 ImageNet weights, in the Keras
	// Applications conversion, convolutional layers only.
	WeightsURL = "https://storage.googleapis.com/tensorflow/keras-applications/vgg19/vgg19_weights_tf_dim_ordering_tf_kernels_notop.h5"

	// WeightsH5Name is the name of the local ".h5" file with the weights.
	WeightsH5Name = "vgg19_weights_notop.h5"

	// UnpackedWeightsName is the name of the subdirectory that will hold the
	// unpacked weights, one tensor per file.
	UnpackedWeightsName = "gomlx_vgg19_weights"
)

// DownloadAndUnpackWeights to the given baseDir. It only does the work if the
// files are not there yet (downloaded and unpacked).
//
// It is verbose and uses a progressbar if downloading/unpacking. It is quiet if
// there is nothing to do, that is, if the files are already there.
//
// A non-empty sha256Checksum pins the downloaded file; empty skips the
// validation.
func DownloadAndUnpackWeights(baseDir, sha256Checksum string) (err error) {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	unpackedWeightsPath := path.Join(baseDir, UnpackedWeightsName)
	if fsutil.MustFileExists(unpackedWeightsPath) {
		// Weights already unpacked, done.
		return
	}
	if err = os.MkdirAll(baseDir, 0755); err != nil {
		return errors.Wrapf(err, "creating weights directory %q", baseDir)
	}

	weightsH5Path := path.Join(baseDir, WeightsH5Name)
	err = data.DownloadIfMissing(WeightsURL, weightsH5Path, sha256Checksum)
	if err != nil {
		return err
	}

	var h5Size uint64
	if info, statErr := os.Stat(weightsH5Path); statErr == nil {
		h5Size = uint64(info.Size())
	}
	fmt.Printf("Unpacking VGG19 weights (%s) to %s:\n", humanize.Bytes(h5Size), unpackedWeightsPath)
	err = hdf5.UnpackToTensors(unpackedWeightsPath, weightsH5Path).ProgressBar().Done()
	return
}

// PathToTensor returns the path to tensorName (name within the h5 file).
func PathToTensor(baseDir, tensorName string) string {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	return path.Join(baseDir, UnpackedWeightsName, tensorName)
}
