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
	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/vtu2gmsh/mesh/readers"
)

// InfoCmd represents the info command
var InfoCmd = &cobra.Command{
	Use:   "info <mesh file>",
	Short: "Print statistics of a .vtu or .msh mesh",
	Long: `
Reads a VTK XML unstructured grid (.vtu) or Gmsh 2.2 ASCII file (.msh) and
prints element counts by type and tag, the bounding box, total volume and
surface area, inverted tetrahedra, orphan nodes and boundary faces.

vtu2gmsh info C0001.vtu`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// The tag name is shared with convert through viper unless given here
		tag := viper.GetString("tag")
		if cmd.Flags().Changed("tag") {
			tag, _ = cmd.Flags().GetString("tag")
		}
		asYAML, _ := cmd.Flags().GetBool("yaml")

		m, err := readers.ReadMeshFile(afero.NewOsFs(), args[0], tag)
		if err != nil {
			return err
		}
		if !asYAML {
			m.PrintStatistics(cmd.OutOrStdout())
			return nil
		}
		data, err := yaml.Marshal(m.ComputeStatistics())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(InfoCmd)
	InfoCmd.Flags().StringP("tag", "t", readers.DefaultTagName, "cell data array holding the element tag (.vtu only)")
	InfoCmd.Flags().Bool("yaml", false, "print statistics as YAML")
}
