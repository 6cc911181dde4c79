// Package clone drives a full clone against a smart-HTTP remote: it
// initializes a repository, discovers the remote's advertised refs,
// negotiates and ingests a pack, and pins local refs and HEAD to match.
// Working-tree materialization is out of scope; it's left to a
// collaborator that reads the resulting Object Store.
package clone

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nivlgo/gitlite/backend"
	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/ginternals/config"
	"github.com/nivlgo/gitlite/ginternals/packfile"
	"github.com/nivlgo/gitlite/transport/fetch"
	"github.com/nivlgo/gitlite/transport/pktline"
	"github.com/nivlgo/gitlite/transport/refdiscovery"
	"github.com/nivlgo/gitlite/transport/smarthttp"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// defaultCapabilities is the capability subset gitlite negotiates: just
// enough to parse the pack it gets back, plus an agent string, per
// spec's "protocol v2 and multi_ack_detailed are non-goals" decision.
var defaultCapabilities = []string{"ofs-delta", "agent=gitlite/1.0"}

var (
	// ErrNoBranches is returned when a remote has no ref whose name
	// resembles a branch to set HEAD to after cloning.
	ErrNoBranches = errors.New("clone: remote advertised no branches")
	// ErrUnexpectedPackPreface is returned when the byte-stream
	// immediately after negotiation doesn't start with the NAK/ACK
	// pkt-line the protocol requires before the raw pack stream.
	ErrUnexpectedPackPreface = errors.New("clone: unexpected pack preface")
)

// Options configures a single clone operation.
type Options struct {
	// URL is the remote repository's smart-HTTP URL, without a trailing
	// slash, e.g. "https://example.com/owner/repo.git".
	URL string
	// Dir is the target directory the .git layout is created in.
	Dir string
	// FS is the filesystem the repository is created on. Defaults to
	// the OS filesystem.
	FS afero.Fs
	// HTTPClient overrides the HTTP client used to talk to the remote.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// RemoteName is recorded as the remote's name in .git/config.
	// Defaults to "origin".
	RemoteName string
}

func (o Options) remoteName() string {
	if o.RemoteName == "" {
		return "origin"
	}
	return o.RemoteName
}

// Result reports what a successful clone produced.
type Result struct {
	// Head is the ref name HEAD was pointed at (e.g. "refs/heads/main").
	Head string
	// ObjectCount is the number of objects ingested from the pack.
	ObjectCount int
}

// Clone runs the full state machine: Init, Discover, Negotiate, Ingest.
// Checkout of a working tree is left to an external collaborator.
func Clone(ctx context.Context, opts Options) (*Result, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	b, err := initRepo(fs, opts.Dir)
	if err != nil {
		return nil, xerrors.Errorf("clone: init step failed: %w", err)
	}
	defer b.Close() //nolint:errcheck // best-effort on both success and failure paths

	client := &smarthttp.Client{BaseURL: opts.URL, HTTPClient: opts.HTTPClient}

	adv, err := discover(ctx, client)
	if err != nil {
		return nil, xerrors.Errorf("clone: discover step failed: %w", err)
	}

	headName, headOid, err := chooseHead(adv)
	if err != nil {
		return nil, xerrors.Errorf("clone: could not choose HEAD: %w", err)
	}

	pack, err := negotiate(ctx, client, headOid, b)
	if err != nil {
		return nil, xerrors.Errorf("clone: negotiate/ingest step failed: %w", err)
	}

	if err := ingest(b, pack, adv, headName); err != nil {
		return nil, xerrors.Errorf("clone: ingest step failed: %w", err)
	}

	if fromFiles := b.Config().FromFile(); fromFiles != nil {
		fromFiles.SetRemoteURL(opts.remoteName(), opts.URL)
		if err := fromFiles.Save(); err != nil {
			return nil, xerrors.Errorf("clone: could not persist remote config: %w", err)
		}
	}

	return &Result{Head: headName, ObjectCount: len(pack.Objects())}, nil
}

func initRepo(fs afero.Fs, dir string) (*backend.Backend, error) {
	cfg, err := config.LoadConfigSkipEnv(config.LoadConfigOptions{
		FS:               fs,
		WorkTreePath:     dir,
		GitDirPath:       filepath.Join(dir, ".git"),
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not build repository config: %w", err)
	}
	cfg.FS = fs

	b, err := backend.NewFS(cfg)
	if err != nil {
		return nil, xerrors.Errorf("could not construct backend: %w", err)
	}
	if err := b.Init(ginternals.Master); err != nil {
		return nil, xerrors.Errorf("could not initialize repository: %w", err)
	}
	return b, nil
}

func discover(ctx context.Context, client *smarthttp.Client) (*refdiscovery.Advertisement, error) {
	body, err := client.DiscoverRefs(ctx)
	if err != nil {
		return nil, xerrors.Errorf("could not discover refs: %w", err)
	}
	defer body.Close() //nolint:errcheck // we've already read everything we need

	adv, err := refdiscovery.Parse(body)
	if err != nil {
		return nil, xerrors.Errorf("could not parse ref advertisement: %w", err)
	}
	return adv, nil
}

// chooseHead picks the ref to point HEAD at: the capability-reported
// symref target if present, otherwise the branch whose tip matches the
// advertised HEAD pseudo-ref.
func chooseHead(adv *refdiscovery.Advertisement) (name string, oid ginternals.Oid, err error) {
	byName := make(map[string]ginternals.Oid, len(adv.Refs))
	for _, r := range adv.Refs {
		byName[r.Name] = r.Oid
	}

	if target, ok := adv.SymrefTarget(); ok {
		if oid, ok := byName[target]; ok {
			return target, oid, nil
		}
	}

	headOid, ok := byName[ginternals.Head]
	if !ok {
		return "", ginternals.NullOid, ErrNoBranches
	}
	for _, r := range adv.Refs {
		if r.Name == ginternals.Head {
			continue
		}
		if r.Oid == headOid && strings.HasPrefix(r.Name, "refs/heads/") {
			return r.Name, r.Oid, nil
		}
	}
	return "", ginternals.NullOid, ErrNoBranches
}

func negotiate(ctx context.Context, client *smarthttp.Client, want ginternals.Oid, resolver packfile.BaseResolver) (*packfile.Pack, error) {
	pr, pw := io.Pipe()
	go func() {
		err := fetch.Write(pw, fetch.Request{
			Wants:        []ginternals.Oid{want},
			Capabilities: defaultCapabilities,
		})
		pw.CloseWithError(err) //nolint:errcheck // CloseWithError always returns nil
	}()

	respBody, err := client.UploadPack(ctx, pr)
	if err != nil {
		return nil, xerrors.Errorf("could not negotiate fetch: %w", err)
	}
	defer respBody.Close() //nolint:errcheck // the pack has been fully read into memory already

	preface := pktline.NewReader(respBody)
	payload, typ, err := preface.ReadLine()
	if err != nil {
		return nil, xerrors.Errorf("could not read pack preface: %w", err)
	}
	line := strings.TrimSuffix(string(payload), "\n")
	if typ != pktline.Data || !(line == "NAK" || strings.HasPrefix(line, "ACK ")) {
		return nil, ErrUnexpectedPackPreface
	}

	pack, err := packfile.Parse(preface.Underlying(), resolver)
	if err != nil {
		return nil, xerrors.Errorf("could not parse pack: %w", err)
	}
	return pack, nil
}

func ingest(b *backend.Backend, pack *packfile.Pack, adv *refdiscovery.Advertisement, headName string) error {
	for _, o := range pack.Objects() {
		if _, err := b.WriteObject(o); err != nil {
			return xerrors.Errorf("could not write object %s: %w", o.ID(), err)
		}
	}

	for _, r := range adv.Refs {
		if r.Name == ginternals.Head || !strings.HasPrefix(r.Name, "refs/") {
			continue
		}
		ref := ginternals.NewReference(r.Name, r.Oid)
		if err := b.WriteReference(ref); err != nil {
			return xerrors.Errorf("could not write ref %s: %w", r.Name, err)
		}
	}

	head := ginternals.NewSymbolicReference(ginternals.Head, headName)
	if err := b.WriteReference(head); err != nil {
		return xerrors.Errorf("could not set HEAD: %w", err)
	}
	return nil
}
