package app

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/config"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/region"
	"github.com/nvr-ai/go-alarm/storage"
)

func newMigrateCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	step := func(name, short string, fn func(*storage.Store) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			RunE: func(c *cobra.Command, args []string) error {
				cfg, err := o.Config()
				if err != nil {
					return err
				}
				store, err := storage.Open(cfg.Database)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := fn(store); err != nil {
					return err
				}
				version, dirty, err := store.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "schema version %d dirty=%t\n", version, dirty)
				return nil
			},
		}
	}
	cmd.AddCommand(
		step("up", "Apply all pending migrations", (*storage.Store).Migrate),
		step("down", "Revert the latest migration", (*storage.Store).MigrateDown),
		step("version", "Print the schema version", func(*storage.Store) error { return nil }),
	)
	return cmd
}

// assignFlags are the catalog fields settable from the command line.
type assignFlags struct {
	camera    storage.Camera
	algorithm storage.Algorithm
	kind      string

	alarmName  string
	disabled   bool
	interval   time.Duration
	debounce   time.Duration
	confidence float32
	regions    string
	ratio      float64
	schedule   string
}

// assignment converts the flags into catalog rows.
func (f *assignFlags) assignment() (storage.Assignment, error) {
	if f.kind != "" {
		kind, err := detector.ParseKind(f.kind)
		if err != nil {
			return storage.Assignment{}, err
		}
		f.algorithm.Kind = kind
	}
	regions, err := region.Parse(f.regions)
	if err != nil {
		return storage.Assignment{}, err
	}
	schedule, err := policy.ParseSchedule(f.schedule)
	if err != nil {
		return storage.Assignment{}, err
	}
	pol := policy.Policy{
		Enabled:           !f.disabled,
		FrameInterval:     f.interval,
		AlarmDebounce:     f.debounce,
		Confidence:        f.confidence,
		Regions:           regions,
		IntersectionRatio: f.ratio,
		Schedule:          schedule,
	}
	if err := pol.Validate(); err != nil {
		return storage.Assignment{}, err
	}
	name := f.alarmName
	if name == "" {
		name = f.algorithm.Name
	}
	return storage.Assignment{AlarmName: name, Policy: pol}, nil
}

func newAssignCommand(o *Options) *cobra.Command {
	f := &assignFlags{}
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Create or update a camera, an algorithm and the assignment between them",
		RunE: withStore(o, func(c *cobra.Command, _ *config.Config, store *storage.Store) error {
			ctx := c.Context()
			asg, err := f.assignment()
			if err != nil {
				return err
			}
			if asg.CameraID, err = store.UpsertCamera(ctx, f.camera); err != nil {
				return err
			}
			if asg.AlgorithmID, err = store.UpsertAlgorithm(ctx, f.algorithm); err != nil {
				return err
			}
			if err := store.UpsertAssignment(ctx, asg); err != nil {
				return err
			}
			klog.InfoS("Assignment saved", "camera", asg.CameraID, "algorithm", asg.AlgorithmID,
				"enabled", asg.Policy.Enabled, "schedule", asg.Policy.Schedule)
			return nil
		}),
	}

	fs := cmd.Flags()
	fs.Int64Var(&f.camera.ID, "camera-id", 0, "Camera id to update. Zero allocates a new camera.")
	fs.StringVar(&f.camera.Name, "camera-name", "", "Camera display name.")
	fs.StringVar(&f.camera.Protocol, "protocol", "rtsp", "Stream protocol.")
	fs.StringVar(&f.camera.Username, "username", "", "Stream user.")
	fs.StringVar(&f.camera.Password, "password", "", "Stream password.")
	fs.StringVar(&f.camera.IP, "ip", "", "Camera address.")
	fs.IntVar(&f.camera.Port, "port", 554, "Stream port.")
	fs.StringVar(&f.camera.Path, "path", "", "Stream path.")

	fs.Int64Var(&f.algorithm.ID, "algorithm-id", 0, "Algorithm id to update. Zero allocates a new algorithm.")
	fs.StringVar(&f.algorithm.Name, "algorithm-name", "", "Algorithm display name.")
	fs.StringVar(&f.algorithm.ModelName, "model", "", "Model identifier, e.g. fire.pt.")
	fs.StringVar(&f.algorithm.Rule, "rule", "judge", "Decision rule: judge, dwell, congestion or posture.")
	fs.StringVar(&f.kind, "kind", "", "Detector kind override: box, keypoint or classifier.")

	fs.StringVar(&f.alarmName, "alarm-name", "", "Alarm name forwarded to the webhook. Defaults to the algorithm name.")
	fs.BoolVar(&f.disabled, "disabled", false, "Save the assignment disabled.")
	fs.DurationVar(&f.interval, "interval", 5*time.Second, "Time between frame samples.")
	fs.DurationVar(&f.debounce, "debounce", time.Minute, "Minimum spacing between forwarded alarms.")
	fs.Float32Var(&f.confidence, "confidence", 0.5, "Minimum detection confidence.")
	fs.StringVar(&f.regions, "regions", "", "JSON array of [x1,y1,x2,y2] regions. Empty means the whole frame.")
	fs.Float64Var(&f.ratio, "intersection-ratio", 0.5, "Fraction of a box that must lie inside a region.")
	fs.StringVar(&f.schedule, "schedule", "", "Daily window HH:MM-HH:MM. Empty means always.")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newAlarmsCommand(o *Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "List recorded alarms, newest first",
		RunE: withStore(o, func(c *cobra.Command, _ *config.Config, store *storage.Store) error {
			events, err := store.Alarms(c.Context(), limit)
			if err != nil {
				return errors.Wrap(err, "list alarms")
			}
			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCAMERA\tALGORITHM\tALARM\tLABELS\tOUTPUT")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", ev.Timestamp.Format(time.DateTime),
					ev.CameraID, ev.AlgorithmID, ev.AlarmName, strings.Join(ev.Labels, ","), ev.OutputPath)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of alarms to show. Zero lists all.")
	return cmd
}
