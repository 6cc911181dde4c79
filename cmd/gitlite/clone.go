package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/nivlgo/gitlite/clone"
	"github.com/spf13/cobra"
)

// cloneCmdFlags represents the flags accepted by the clone command
//
// Reference: https://git-scm.com/docs/git-clone#_options
type cloneCmdFlags struct {
	origin string
	quiet  bool
}

func newCloneCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone REPOSITORY [DIRECTORY]",
		Short: "Clone a repository into a new directory",
		Long:  "Clones a repository over smart-HTTP: discovers the remote's refs, negotiates and downloads a pack, and lays out the resulting objects and refs under DIRECTORY/.git. Unlike git clone, no working tree is checked out.",
		Args:  cobra.RangeArgs(1, 2),
	}

	flags := cloneCmdFlags{}
	cmd.Flags().StringVarP(&flags.origin, "origin", "o", "origin", "Use <name> instead of 'origin' to track the upstream repository.")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Operate quietly. Progress is not reported to the standard error stream.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		directory := ""
		if len(args) == 2 {
			directory = args[1]
		}
		return cloneCmd(cmd.Context(), cmd.OutOrStdout(), flags, args[0], directory)
	}

	return cmd
}

func cloneCmd(ctx context.Context, out io.Writer, flags cloneCmdFlags, repository, directory string) error {
	dir := directory
	if dir == "" {
		dir = defaultCloneDirName(repository)
	}
	if dir == "" {
		return fmt.Errorf("could not guess directory name for %q, please provide one", repository)
	}

	result, err := clone.Clone(ctx, clone.Options{
		URL:        strings.TrimSuffix(repository, "/"),
		Dir:        dir,
		RemoteName: flags.origin,
	})
	if err != nil {
		return err
	}

	fprintf(flags.quiet, out, "Cloned into '%s', HEAD is at %s (%d objects)\n", dir, result.Head, result.ObjectCount)
	return nil
}

// defaultCloneDirName mirrors git's own rule: the last path segment of
// the URL, with a trailing "/" or ".git" stripped.
func defaultCloneDirName(repository string) string {
	name := strings.TrimSuffix(repository, "/")
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	return strings.TrimSuffix(name, ".git")
}
