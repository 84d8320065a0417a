package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

var recognizeCmd = &cobra.Command{
	Use:   "recognize PATH...",
	Short: "Run recognition over image files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := collectImages(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.New("no images found")
		}

		a, err := newApp(cmd.Context(), appOptions{models: true, journal: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.service.Available() {
			return service.ErrServiceUnavailable
		}

		type row struct {
			path    string
			outcome anpr.FrameOutcome
			err     error
		}
		rows := make([]row, 0, len(files))

		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Recognizing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		for _, path := range files {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			r := row{path: path}
			data, err := os.ReadFile(path)
			if err == nil {
				r.outcome, err = a.service.ProcessSingle(cmd.Context(), data, service.FrameMeta{Source: anpr.SourceBatch})
			}
			r.err = err
			rows = append(rows, r)
			_ = bar.Add(1)
		}
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)

		granted := 0
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FILE\tSTATUS\tPLATE\tCONFIDENCE\tACCESS")
		for _, r := range rows {
			if r.err != nil {
				fmt.Fprintf(w, "%s\tERROR\t%v\t\t\n", r.path, r.err)
				continue
			}
			if r.outcome.Granted() {
				granted++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n", r.path, r.outcome.Status, r.outcome.PlateText, r.outcome.Confidence, r.outcome.AccessStatus)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d images granted\n", granted, len(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

// collectImages expands directories into the image files below them, sorted.
func collectImages(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
