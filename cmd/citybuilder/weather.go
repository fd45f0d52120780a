package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"citybuilder/internal/weather"
)

func newWeatherCmd(a *app) *cobra.Command {
	var (
		city     string
		lat, lon float64
	)
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the current weather for a city, coordinates or the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
			var q weather.Query
			switch {
			case city != "":
				q = weather.ByCity(city)
			case latSet && lonSet:
				q = weather.ByCoordinates(lat, lon)
			case latSet || lonSet:
				return fmt.Errorf("--lat and --lon must be given together")
			default:
				q = weather.ByDeviceLocation()
			}
			reading, err := a.weatherSource().Fetch(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd, reading)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "preset city (Sofia, Lyon, Atlanta)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	return cmd
}
