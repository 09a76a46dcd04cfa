// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lgilyazov/teleimport/archive"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "List the entries of an export archive without uploading anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		export, err := archive.Open(args[0])
		if err != nil {
			return err
		}
		defer export.Close()
		entries, err := export.Manifest(primaryFile)
		if err != nil {
			return err
		}
		var total int64
		for _, entry := range entries {
			fmt.Printf("%-10s %-24s %10s  %s\n", entry.Media, entry.MIMEType, humanize.Bytes(uint64(entry.Size)), entry.Path)
			total += entry.Size
		}
		fmt.Printf("%d entries, %s total\n", len(entries), humanize.Bytes(uint64(total)))
		return nil
	},
}
