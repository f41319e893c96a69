/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/vtu2gmsh/converter"
	"github.com/notargets/vtu2gmsh/mesh/readers"
	"github.com/notargets/vtu2gmsh/mesh/writers"
)

// ConvertCmd represents the convert command
var ConvertCmd = &cobra.Command{
	Use:   "convert [input.vtu] [output.msh]",
	Short: "Convert a VTK unstructured grid to a Gmsh 2.2 ASCII mesh",
	Long: `
Converts the triangles and tetrahedra of a VTK XML unstructured grid to a Gmsh
MSH 2.2 ASCII file. The cell data array named by --tag is written as both the
physical and elementary tag of each element. Cells that are not triangles or
tetrahedra by point count are skipped with a warning (--policy skip) or stop
the conversion (--policy fail).

vtu2gmsh convert C0001.vtu C0001.msh`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, output := viper.GetString("input"), viper.GetString("output")
		if len(args) > 0 {
			input = args[0]
		}
		if len(args) > 1 {
			output = args[1]
		}
		policy, err := writers.ParseShapePolicy(viper.GetString("policy"))
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("profile"); dir != "" {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet).Stop()
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		res, err := converter.Convert(input, output,
			converter.WithLogger(logger),
			converter.WithTagName(viper.GetString("tag")),
			converter.WithShapePolicy(policy),
			converter.WithVerify(viper.GetBool("verify")))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d nodes, %d elements",
			input, output, res.NumNodes, res.NumElements)
		if len(res.Skipped) != 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d of %d cells skipped", len(res.Skipped), res.NumCells)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ConvertCmd)
	ConvertCmd.Flags().StringP("input", "F", converter.DefaultInput, "VTK XML unstructured grid (.vtu) to read")
	ConvertCmd.Flags().StringP("output", "O", converter.DefaultOutput, "Gmsh 2.2 file (.msh) to write")
	ConvertCmd.Flags().StringP("tag", "t", readers.DefaultTagName, "cell data array holding the element tag")
	ConvertCmd.Flags().String("policy", writers.SkipMalformed.String(), "cells that are not triangles or tetrahedra: skip or fail")
	ConvertCmd.Flags().Bool("verify", false, "read the written file back and check it against the input")
	ConvertCmd.Flags().String("profile", "", "directory to write a CPU profile to")
	for _, key := range []string{"input", "output", "tag", "policy", "verify"} {
		viper.BindPFlag(key, ConvertCmd.Flags().Lookup(key))
	}
}
