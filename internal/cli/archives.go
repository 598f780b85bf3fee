package cli

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"tcforge/internal/fetch"
	"tcforge/internal/unit"
)

// cachedArchives lists the packed archives of the manifest found in the cache.
func (a *app) cachedArchives() ([]unit.Context, error) {
	m, err := a.manifest()
	if err != nil {
		return nil, err
	}
	layout := a.layout()
	var out []unit.Context
	for _, spec := range m.Units {
		u, err := spec.Unit()
		if err != nil {
			return nil, err
		}
		c := unit.NewContext(u, "", layout)
		if !u.Kind.Packed() {
			continue
		}
		if _, err := os.Stat(c.ArchivePath()); err != nil {
			a.out.Debugf("%s not cached\n", c.ArchiveName())
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func newChecksumCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum",
		Short: "Print BLAKE3 sums of cached archives and check declared ones",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			archives, err := a.cachedArchives()
			if err != nil {
				return err
			}
			bad := 0
			for _, c := range archives {
				sum, err := fetch.Sum(c.ArchivePath())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out.Writer(), "%s  %s\n", sum, c.ArchiveName())
				if c.Unit.B3Sum != "" && c.Unit.B3Sum != sum {
					a.out.Error("%s does not match the manifest (%s)", c.ArchiveName(), c.Unit.B3Sum)
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("%w: %d archive(s)", fetch.ErrChecksumMismatch, bad)
			}
			return nil
		},
	}
}

func newMirrorCmd(a *app) *cobra.Command {
	var prefix string
	mirror := &cobra.Command{
		Use:   "mirror",
		Short: "Share cached archives through the configured S3 bucket",
	}
	mirror.PersistentFlags().StringVar(&prefix, "prefix", "sources", "key prefix inside the bucket")

	push := &cobra.Command{
		Use:   "push",
		Short: "Upload cached archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := fetch.NewS3Client(cmd.Context(), a.cfg.S3, a.cfg.Debug)
			if err != nil {
				return err
			}
			archives, err := a.cachedArchives()
			if err != nil {
				return err
			}
			for _, c := range archives {
				key := path.Join(prefix, c.ArchiveName())
				if err := store.Upload(cmd.Context(), key, c.ArchivePath()); err != nil {
					return fmt.Errorf("failed to upload %s: %w", c.ArchiveName(), err)
				}
				a.out.OK("uploaded s3://%s/%s", store.Bucket, key)
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List mirrored archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := fetch.NewS3Client(cmd.Context(), a.cfg.S3, a.cfg.Debug)
			if err != nil {
				return err
			}
			objects, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, o := range objects {
				fmt.Fprintf(a.out.Writer(), "%10d  s3://%s/%s\n", o.Size, store.Bucket, o.Key)
			}
			return nil
		},
	}

	mirror.AddCommand(push, list)
	return mirror
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tcforge", Version)
		},
	}
}
