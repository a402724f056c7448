// Package main provides the demstep CLI for exercising the demstack
// library by hand: querying a single elevation, stepping a ray against a
// layered Stepper, inspecting a Stack's cache occupancy, and fanning a
// batch of points out across concurrent Clients sharing one Stack.
//
// Usage:
//
//	demstep query --lat 45.5 --lon 3.5
//	demstep step --lat 45.5 --lon 3.5 --h 500
//	demstep cache-stats
//	demstep batch --points points.csv --workers 8
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jcom-dev/demstack/internal/client"
	"github.com/jcom-dev/demstack/internal/config"
	"github.com/jcom-dev/demstack/internal/geodesy"
	"github.com/jcom-dev/demstack/internal/stack"
	"github.com/jcom-dev/demstack/internal/stepper"
)

var (
	verbose bool
	cfg     *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "demstep",
		Short: "Query and step a GDEM2 elevation stack from the command line",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newQueryCmd(), newStepCmd(), newCacheStatsCmd(), newBatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStack() (*stack.Stack, error) {
	return stack.Create(cfg.Dir, cfg.MaxTiles, cfg.Format, stack.WithMutex())
}

func newQueryCmd() *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the elevation at a single (lat, lon) point",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack()
			if err != nil {
				return err
			}
			c, err := client.New(s)
			if err != nil {
				return err
			}
			defer c.Destroy()

			z, inside, err := c.ElevationInside(lat, lon)
			if err != nil {
				return err
			}
			if !inside {
				fmt.Printf("(%v, %v): no tile covers this point\n", lat, lon)
				return nil
			}
			fmt.Printf("(%v, %v): %.2f m\n", lat, lon, z)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude, degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude, degrees")
	return cmd
}

func newStepCmd() *cobra.Command {
	var lat, lon, h, baseElevation float64
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Step a ray at (lat, lon, h) against a Flat+Stack layer stepper",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack()
			if err != nil {
				return err
			}

			st := stepper.New()
			st.AddFlat(baseElevation)
			if err := st.AddStack(s); err != nil {
				return err
			}
			if cfg.LocalFrameRangeM > 0 {
				st.SetRange(cfg.LocalFrameRangeM)
			}
			defer st.Destroy()

			x, y, z := geodesy.GeodeticToECEF(lat, lon, h)
			phi, lambda, height, ground, layerIdx, err := st.StepLayer([3]float64{x, y, z})
			if err != nil {
				return err
			}
			fmt.Printf("geodetic=(%.6f, %.6f, %.2fm) ground=%.2fm layer=%d\n", phi, lambda, height, ground, layerIdx)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude, degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude, degrees")
	cmd.Flags().Float64Var(&h, "h", 0, "Ellipsoidal height, meters")
	cmd.Flags().Float64Var(&baseElevation, "base-elevation", 0, "Flat layer elevation beneath the Stack layer")
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Print the resident tile count and pin occupancy of the configured Stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack()
			if err != nil {
				return err
			}
			stats := s.Stats()
			fmt.Printf("dir:      %s\n", s.Path())
			fmt.Printf("resident: %s tiles (max %s)\n", humanize.Comma(int64(stats.Size)), humanize.Comma(int64(stats.MaxSize)))
			fmt.Printf("pinned:   %s tiles\n", humanize.Comma(int64(stats.Pinned)))
			return nil
		},
	}
}

func newBatchCmd() *cobra.Command {
	var pointsPath string
	var workers int
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Query elevation for every point in a CSV file (lat,lon per line) concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := readPoints(pointsPath)
			if err != nil {
				return err
			}

			s, err := openStack()
			if err != nil {
				return err
			}

			results := make([]string, len(points))
			var g errgroup.Group
			g.SetLimit(workers)
			for i, p := range points {
				i, p := i, p
				g.Go(func() error {
					c, err := client.New(s)
					if err != nil {
						return err
					}
					defer c.Destroy()

					z, inside, err := c.ElevationInside(p.lat, p.lon)
					if err != nil {
						return err
					}
					if !inside {
						results[i] = fmt.Sprintf("%v,%v,NODATA", p.lat, p.lon)
						return nil
					}
					results[i] = fmt.Sprintf("%v,%v,%.2f", p.lat, p.lon, z)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, r := range results {
				fmt.Println(r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pointsPath, "points", "", "Path to a CSV file of lat,lon points")
	cmd.Flags().IntVar(&workers, "workers", 4, "Maximum concurrent Clients querying the shared Stack")
	cmd.MarkFlagRequired("points")
	return cmd
}

type point struct{ lat, lon float64 }

func readPoints(path string) ([]point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open points file: %w", err)
	}
	defer f.Close()

	var points []point
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed points line %q: want lat,lon", line)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude in line %q: %w", line, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude in line %q: %w", line, err)
		}
		points = append(points, point{lat: lat, lon: lon})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read points file: %w", err)
	}
	return points, nil
}
