package app

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-alarm/capture"
	"github.com/nvr-ai/go-alarm/config"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/profiler"
	"github.com/nvr-ai/go-alarm/snapshot"
	"github.com/nvr-ai/go-alarm/storage"
)

type probeFlags struct {
	cameraID   int64
	url        string
	model      string
	kind       string
	confidence float32
}

// newProbeCommand grabs one frame, optionally runs a model on it and saves
// the annotated result, for checking a camera before assigning it.
func newProbeCommand(o *Options) *cobra.Command {
	f := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Capture one frame from a camera and optionally run a model on it",
		RunE: withStore(o, func(c *cobra.Command, cfg *config.Config, store *storage.Store) error {
			return probe(c, cfg, store, f)
		}),
	}
	fs := cmd.Flags()
	fs.Int64Var(&f.cameraID, "camera-id", 0, "Catalog camera to probe.")
	fs.StringVar(&f.url, "url", "", "Stream URL to probe instead of a catalog camera.")
	fs.StringVar(&f.model, "model", "", "Model to run on the frame. Empty only captures.")
	fs.StringVar(&f.kind, "kind", "", "Detector kind override.")
	fs.Float32Var(&f.confidence, "confidence", 0.5, "Minimum detection confidence.")
	return cmd
}

func probe(c *cobra.Command, cfg *config.Config, store *storage.Store, f *probeFlags) error {
	ctx := c.Context()
	out := c.OutOrStdout()

	url := f.url
	if url == "" {
		if f.cameraID == 0 {
			return errors.New("either --camera-id or --url is required")
		}
		cam, err := store.Camera(ctx, f.cameraID)
		if err != nil {
			return err
		}
		url = capture.StreamURL(cam.Protocol, cam.Username, cam.Password, cam.IP, cam.Port, cam.Path)
	}

	src := &capture.OpenCVSource{Timeout: cfg.Session.CaptureTimeout}
	frame, err := src.Capture(ctx, url)
	if err != nil {
		return errors.Wrap(err, "capture")
	}
	if frame == nil {
		return errors.New("stream returned an empty frame")
	}
	w, h := frame.Size()
	fmt.Fprintf(out, "captured %dx%d\n", w, h)

	var annotations []snapshot.Annotation
	if f.model != "" {
		e := newEngine(cfg, store, profiler.New())
		alg := storage.Algorithm{ModelName: f.model}
		if f.kind != "" {
			if alg.Kind, err = detector.ParseKind(f.kind); err != nil {
				return err
			}
		}
		spec, err := e.resolve(alg)
		if err != nil {
			return err
		}
		det, err := e.detector(spec)
		if err != nil {
			return err
		}
		defer det.Close()

		dets, err := det.Infer(ctx, *frame, f.confidence)
		if err != nil {
			return errors.Wrap(err, "infer")
		}
		for _, d := range dets {
			fmt.Fprintln(out, d)
			annotations = append(annotations, snapshot.Annotation{
				Box:     d.Box,
				Caption: fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence),
			})
		}
		fmt.Fprintf(out, "%d detections\n", len(dets))
	}

	in, annotated, err := snapshot.NewWriter(cfg.DataDir).Save(0, *frame, nil, annotations)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s and %s\n", in, annotated)
	return nil
}
