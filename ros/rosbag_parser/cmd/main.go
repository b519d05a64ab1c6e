// Package main exports the frames of a bag recorded from the driver's topics as PNG images and
// PCD point clouds.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/ensenso/components/camera/ensenso/replay"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/messages"
	"go.viam.com/ensenso/pointcloud"
	"go.viam.com/ensenso/rimage"
	"go.viam.com/ensenso/ros"
	rutils "go.viam.com/ensenso/utils"
)

var logger = logging.NewLogger("rosbag_parser")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Bag       string `flag:"0,required,usage=bag file to export"`
	Namespace string `flag:"namespace,usage=namespace the driver's topics were recorded under"`
	Output    string `flag:"out,default=.,usage=directory to write frames to"`
	Format    string `flag:"format,default=png,usage=image format (png, jpeg, qoi or ppm)"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	mimeType, ok := rutils.MimeTypeFromFormat(argsParsed.Format)
	if !ok {
		return errors.Errorf("unsupported image format %q", argsParsed.Format)
	}

	rb, err := ros.ReadBag(argsParsed.Bag)
	if err != nil {
		return err
	}
	rec, err := replay.LoadRecording(rb, argsParsed.Namespace)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(argsParsed.Output, 0o750); err != nil {
		return err
	}

	for i, frame := range rec.Frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for name, img := range map[string]*messages.Image{
			"left_raw":   frame.LeftRaw,
			"right_raw":  frame.RightRaw,
			"left_rect":  frame.LeftRect,
			"right_rect": frame.RightRect,
		} {
			path := filepath.Join(argsParsed.Output, fmt.Sprintf("%s_%04d.%s", name, i, argsParsed.Format))
			if err := saveImage(ctx, img, mimeType, path); err != nil {
				return errors.Wrap(err, path)
			}
		}
		if frame.Cloud == nil {
			continue
		}
		path := filepath.Join(argsParsed.Output, fmt.Sprintf("cloud_%04d.pcd", i))
		if err := saveCloud(frame.Cloud, path); err != nil {
			return errors.Wrap(err, path)
		}
	}
	logger.Infow("exported recording", "frames", len(rec.Frames), "out", argsParsed.Output)
	return nil
}

func saveImage(ctx context.Context, msg *messages.Image, mimeType, path string) error {
	img, err := rimage.ImageFromMsg(msg)
	if err != nil {
		return err
	}
	data, err := rimage.EncodeImage(ctx, img, mimeType)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func saveCloud(msg *messages.PointCloud2, path string) (err error) {
	cloud, err := pointcloud.FromPointCloud2(msg)
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ToPCD(cloud, f, pointcloud.PCDBinary)
}
