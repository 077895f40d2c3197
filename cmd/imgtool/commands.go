package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"image-transform/internal/params"
	"image-transform/internal/transform"

	"github.com/spf13/cobra"
)

// transformFlags mirror the query parameters of GET /transform. Flags that
// are set override the same key in --query.
type transformFlags struct {
	query      string
	width      int
	height     int
	fit        string
	anchor     string
	rotate     string
	trim       int
	background string
	filter     string
	output     string
	quality    int
}

func (f *transformFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.query, "query", "", `raw parameters in query-string form, e.g. "w=200&h=200&t=crop"`)
	fl.IntVar(&f.width, "width", 0, "target width (w)")
	fl.IntVar(&f.height, "height", 0, "target height (h)")
	fl.StringVar(&f.fit, "fit", "", "fit: fit, fitup, square, squaredown, absolute, letterbox, crop (t)")
	fl.StringVar(&f.anchor, "anchor", "", "crop anchor or entropy/attention (a)")
	fl.StringVar(&f.rotate, "rotate", "", "extra rotation 90/180/270, or auto (or)")
	fl.IntVar(&f.trim, "trim", 0, "trim borders with this threshold (trim)")
	fl.Lookup("trim").NoOptDefVal = strconv.Itoa(params.DefaultTrimThreshold)
	fl.StringVar(&f.background, "background", "", "background colour hex (bg)")
	fl.StringVar(&f.filter, "filter", "", "greyscale or sepia (filt)")
	fl.StringVar(&f.output, "format", "", "output format: jpg, png, gif, webp, tiff (output)")
	fl.IntVar(&f.quality, "quality", 0, "encoder quality 1-100 (q)")
}

func (f *transformFlags) values(cmd *cobra.Command) (url.Values, error) {
	v, err := url.ParseQuery(f.query)
	if err != nil {
		return nil, fmt.Errorf("--query: %w", err)
	}
	changed := cmd.Flags().Changed
	setInt := func(flag, key string, n int) {
		if changed(flag) {
			v.Set(key, strconv.Itoa(n))
		}
	}
	setString := func(flag, key, s string) {
		if changed(flag) {
			v.Set(key, s)
		}
	}
	setInt("width", "w", f.width)
	setInt("height", "h", f.height)
	setString("fit", "t", f.fit)
	setString("anchor", "a", f.anchor)
	setString("rotate", "or", f.rotate)
	setInt("trim", "trim", f.trim)
	setString("background", "bg", f.background)
	setString("filter", "filt", f.filter)
	setString("format", "output", f.output)
	setInt("quality", "q", f.quality)
	return v, nil
}

func (f *transformFlags) options(cmd *cobra.Command) (params.Options, error) {
	v, err := f.values(cmd)
	if err != nil {
		return params.Options{}, err
	}
	return params.Parse(v)
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "imgtool",
		Short:         "Transform local images with the image-transform pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline steps")
	root.AddCommand(newTransformCmd(), newPlanCmd())
	return root
}

func newTransformCmd() *cobra.Command {
	var flags transformFlags
	var maxPixels int
	cmd := &cobra.Command{
		Use:   "transform INPUT OUTPUT",
		Short: "Transform INPUT and write the result to OUTPUT (- for stdout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tr, err := transform.New(slog.Default(), transform.Limits{MaxPixels: maxPixels})
			if err != nil {
				return err
			}
			res, err := tr.Transform(cmd.Context(), data, opts)
			if err != nil {
				return err
			}
			if args[1] == "-" {
				_, err = cmd.OutOrStdout().Write(res.Data)
				return err
			}
			if err := os.WriteFile(args[1], res.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %dx%d %s, %d bytes\n", args[1], res.Width, res.Height, res.Format, len(res.Data))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&maxPixels, "max-pixels", 71000000, "reject outputs larger than this many pixels")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var flags transformFlags
	cmd := &cobra.Command{
		Use:   "plan INPUT",
		Short: "Print the resize plan for INPUT as JSON without transforming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			plan, err := transform.PlanFor(data, opts)
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), plan)
		},
	}
	flags.register(cmd)
	return cmd
}

func writePlan(w io.Writer, plan any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
