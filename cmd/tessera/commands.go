package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/tessera/internal/app"
	"github.com/jobrunner/tessera/internal/application"
	"github.com/jobrunner/tessera/internal/domain"
)

var groupsCmd = &cobra.Command{
	Use:   "groups DATASET GEOMETRY",
	Short: "Resolve the raster groups of a dataset covering a geometry",
	Long: `Resolve the raster groups of a dataset covering a geometry and print
them as JSON. GEOMETRY is WKT or GeoJSON.`,
	Args: cobra.ExactArgs(2),
	RunE: runGroups,
}

var subsetCmd = &cobra.Command{
	Use:   "subset FILE",
	Short: "Compute the contiguous subset of a geolocation array inside a region",
	Long: `Compute the contiguous subset of a geolocation array inside a region.
FILE is JSON with "lat", "lon" and optional "weights" and "ref_ids" arrays;
"-" reads standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubset,
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Print the configured dataset profiles as YAML",
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

func init() {
	groupsCmd.Flags().StringSlice("bands", nil, "band filter; may include a discriminator value")
	groupsCmd.Flags().Bool("flags", false, "include flags rasters")
	groupsCmd.Flags().String("catalog", "", "inline GeoJSON catalog file for inline datasets")
	groupsCmd.Flags().String("start", "", "earliest acquisition time (RFC3339)")
	groupsCmd.Flags().String("stop", "", "latest acquisition time (RFC3339)")
	groupsCmd.Flags().String("url-substring", "", "keep groups whose paths contain this substring")

	subsetCmd.Flags().String("polygon", "", "region polygon as WKT or GeoJSON")
	subsetCmd.Flags().Float64("cell-size", 0, "rasterize the polygon with this cell size (degrees)")
	subsetCmd.Flags().Int64("ref-id", -1, "restrict to elements with this reference id")
	subsetCmd.Flags().Bool("skip-zero-lat", false, "treat latitude 0 as a missing record")
}

func runGroups(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadOffline()
	if err != nil {
		return err
	}

	req, err := groupsRequestFromFlags(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Resolver.Timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Locator.Purge()

	resp, err := a.Resolver.FindGroups(ctx, req)
	if err != nil {
		return err
	}
	return writeGroups(cmd.OutOrStdout(), resp)
}

func groupsRequestFromFlags(cmd *cobra.Command, dataset, geometry string) (domain.GroupsRequest, error) {
	geom, err := domain.ParseGeometry(geometry)
	if err != nil {
		return domain.GroupsRequest{}, err
	}

	req := domain.GroupsRequest{Dataset: dataset, Geometry: geom}
	req.Bands, _ = cmd.Flags().GetStringSlice("bands")
	req.Flags, _ = cmd.Flags().GetBool("flags")
	req.Filter.URLSubstring, _ = cmd.Flags().GetString("url-substring")

	if req.Filter.Start, err = timeFlag(cmd, "start"); err != nil {
		return req, err
	}
	if req.Filter.Stop, err = timeFlag(cmd, "stop"); err != nil {
		return req, err
	}
	if path, _ := cmd.Flags().GetString("catalog"); path != "" {
		data, err := os.ReadFile(path) //#nosec G304 -- operator supplied path
		if err != nil {
			return req, fmt.Errorf("reading catalog: %w", err)
		}
		req.Catalog = data
	}
	return req, nil
}

func timeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s: %v", domain.ErrInvalidRequest, name, err)
	}
	return t, nil
}

type groupsOutput struct {
	Dataset  string        `json:"dataset"`
	Selector string        `json:"selector,omitempty"`
	Groups   []groupOutput `json:"groups"`
}

type groupOutput struct {
	ID      string         `json:"id,omitempty"`
	Time    *time.Time     `json:"time,omitempty"`
	Rasters []rasterOutput `json:"rasters"`
}

type rasterOutput struct {
	Tag  domain.RasterTag `json:"tag"`
	Band string           `json:"band,omitempty"`
	Path string           `json:"path"`
}

func writeGroups(w io.Writer, resp *domain.GroupsResponse) error {
	out := groupsOutput{
		Dataset:  resp.Dataset,
		Selector: resp.Selector,
		Groups:   make([]groupOutput, 0, len(resp.Groups)),
	}
	for _, g := range resp.Groups {
		group := groupOutput{ID: g.ID}
		if !g.AcquisitionTime.IsZero() {
			t := g.AcquisitionTime
			group.Time = &t
		}
		for _, info := range g.Infos {
			group.Rasters = append(group.Rasters, rasterOutput{
				Tag:  info.Tag,
				Band: info.Band,
				Path: resp.Files.Resolve(info.FileID),
			})
		}
		out.Groups = append(out.Groups, group)
	}
	return writeIndented(w, out)
}

// geolocationFile is the input of the subset command.
type geolocationFile struct {
	Lat     []float64 `json:"lat"`
	Lon     []float64 `json:"lon"`
	Weights []int64   `json:"weights,omitempty"`
	RefIDs  []int64   `json:"ref_ids,omitempty"`
}

func runSubset(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadOffline()
	if err != nil {
		return err
	}

	geo, err := readGeolocation(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	req := domain.SubsetRequest{Beam: args[0], Geo: geo}
	req.SkipZeroLat, _ = cmd.Flags().GetBool("skip-zero-lat")
	if id, _ := cmd.Flags().GetInt64("ref-id"); id >= 0 {
		req.RefID = &id
	}
	if req.Region, err = regionFromFlags(cmd, cfg.Resolver.MaxMaskCells); err != nil {
		return err
	}

	// Subsetting needs no catalogs, so only the resolver is built.
	resolver := application.NewResolveService(
		application.NewDatasetRegistry(logger),
		nil,
		nil,
		logger,
		application.ResolveServiceConfig{BeamWorkers: cfg.Resolver.BeamWorkers},
	)

	resp, err := resolver.Subset(cmd.Context(), req)
	if err != nil {
		return err
	}

	sel := resp.Selection
	return writeIndented(cmd.OutOrStdout(), map[string]any{
		"elements":     resp.Elements,
		"empty":        resp.Empty,
		"first_index":  sel.FirstIndex,
		"count":        sel.Count,
		"selected":     sel.Selected(),
		"first_weight": sel.FirstWeight,
		"weight_count": sel.WeightCount,
		"masked":       sel.Mask != nil,
	})
}

func readGeolocation(stdin io.Reader, path string) (domain.Geolocation, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path) //#nosec G304 -- operator supplied path
		if err != nil {
			return domain.Geolocation{}, fmt.Errorf("opening geolocation file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var in geolocationFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return domain.Geolocation{}, fmt.Errorf("%w: decoding geolocation: %v", domain.ErrInvalidRequest, err)
	}
	return domain.Geolocation{Lat: in.Lat, Lon: in.Lon, Weights: in.Weights, RefIDs: in.RefIDs}, nil
}

func regionFromFlags(cmd *cobra.Command, maxCells int64) (domain.RegionTest, error) {
	polygon, _ := cmd.Flags().GetString("polygon")
	if polygon == "" {
		return nil, nil
	}
	g, err := domain.ParseGeometry(polygon)
	if err != nil {
		return nil, err
	}
	if cellSize, _ := cmd.Flags().GetFloat64("cell-size"); cellSize > 0 {
		return domain.NewRasterMaskFromPolygon(g, cellSize, maxCells)
	}
	return domain.NewPolygonRegionFromGeometry(g)
}

func runDatasets(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadOffline()
	if err != nil {
		return err
	}

	registry := application.NewDatasetRegistry(logger)
	if err := registry.Load(cfg.Builtins, cfg.Datasets); err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(registry.ListDatasets(cmd.Context()))
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
