// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lgilyazov/teleimport"
	"github.com/lgilyazov/teleimport/archive"
	"github.com/lgilyazov/teleimport/transport"
)

var (
	archivePath string
	peerID      int64
	primaryFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upload a chat export archive into a conversation",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&archivePath, "archive", "", "Path to the export zip")
	importCmd.Flags().Int64Var(&peerID, "peer", 0, "Target conversation ID")
	importCmd.Flags().StringVar(&primaryFile, "primary", "_chat.txt", "Logical path of the main text export inside the archive")
	_ = importCmd.MarkFlagRequired("archive")
	_ = importCmd.MarkFlagRequired("peer")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := newLogger()

	export, err := archive.Open(archivePath)
	if err != nil {
		return err
	}
	defer export.Close()

	entries, err := export.Manifest(primaryFile)
	if err != nil {
		return err
	}
	log.Info().Int("entries", len(entries)).Str("archive", archivePath).Msg("Starting import")

	client := transport.NewClient(serverURL, authToken, log.With().Str("component", "transport").Logger())
	manager, err := teleimport.NewImportManager(teleimport.Config{
		Client:      client,
		Extractor:   export,
		Resolver:    client,
		Peer:        teleimport.PeerID(peerID),
		PrimaryFile: primaryFile,
		Entries:     entries,
		Log:         log.With().Str("component", "import").Logger(),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	estimator := teleimport.NewProgressEstimator()
	result := make(chan error, 1)
	manager.AddStateHandler(func(state teleimport.ImportState) {
		switch s := state.(type) {
		case teleimport.StateProgress:
			logProgress(log, estimator, s)
		case teleimport.StateError:
			result <- fmt.Errorf("import failed: %s", s.Kind)
		case teleimport.StateDone:
			result <- nil
		}
	})

	if err = manager.Start(cmd.Context()); err != nil {
		return err
	}
	select {
	case err = <-result:
	case <-cmd.Context().Done():
		err = cmd.Context().Err()
	}
	if err != nil {
		return err
	}
	log.Info().Msg("Import complete")
	return nil
}

func logProgress(log zerolog.Logger, estimator *teleimport.ProgressEstimator, s teleimport.StateProgress) {
	event := log.Info().
		Str("uploaded", humanize.Bytes(uint64(s.UploadedBytes))).
		Str("total", humanize.Bytes(uint64(s.TotalBytes)))
	if s.TotalBytes > 0 {
		fraction := float64(s.UploadedBytes) / float64(s.TotalBytes)
		event = event.Str("percent", fmt.Sprintf("%.1f%%", fraction*100))
		if remaining, ok := estimator.Update(fraction); ok {
			event = event.Str("eta", remaining.Round(time.Second).String())
		}
	}
	event.Msg("Upload progress")
}
