// Command thrifty-builder builds the container images described by a
// configuration document, skipping any whose content fingerprint has
// not drifted since the last successful publication, pushes the rest to
// the configured registries, and prints the resulting fingerprints as
// JSON on stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/checksumstore"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/config"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/dockerbuild"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/fingerprint"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/planner"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/publish"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// maxVerbosityCount caps the repeatable -v flag at the most verbose
// level the logging facade distinguishes.
const maxVerbosityCount = 2

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		verbosity         int
		checksumPath      string
		checksumConsulKey string
		builtOnly         bool
	)

	cmd := &cobra.Command{
		Use:          "thrifty-builder <configuration-location>",
		Short:        "Build and push container images, skipping any whose fingerprint has not changed",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOptions{
				configPath:        args[0],
				verbosity:         verbosity,
				checksumPath:      checksumPath,
				checksumConsulKey: checksumConsulKey,
				builtOnly:         builtOnly,
				stdin:             os.Stdin,
				stdout:            os.Stdout,
			})
		},
	}

	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase the level of log verbosity (add multiple times to increase further)")
	cmd.Flags().StringVar(&checksumPath, "checksums-from-path", "", "read and write fingerprints from a local JSON file, overriding the configured checksum storage")
	cmd.Flags().StringVar(&checksumConsulKey, "checksums-from-consul-key", "", "read and write fingerprints from a Consul key, overriding the configured checksum storage")
	cmd.Flags().BoolVar(&builtOnly, "built-only", true, "print only the images built during this run, instead of every managed image")

	return cmd
}

type runOptions struct {
	configPath        string
	verbosity         int
	checksumPath      string
	checksumConsulKey string
	builtOnly         bool
	stdin             io.Reader
	stdout            io.Writer
}

func run(opts runOptions) error {
	if opts.verbosity > maxVerbosityCount {
		return thrifterr.InvalidCliArgument("cannot provide any further logging - reduce log verbosity")
	}
	if opts.checksumPath != "" && opts.checksumConsulKey != "" {
		return thrifterr.InvalidCliArgument("ambiguous checksum source: both --checksums-from-path and --checksums-from-consul-key given")
	}

	setKlogVerbosity(opts.verbosity)
	logger := log.ToFile(os.Stderr, int32(opts.verbosity))

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyChecksumOverrides(cfg, opts.checksumPath, opts.checksumConsulKey)

	container, err := cfg.BuildContainer()
	if err != nil {
		return err
	}

	persistent, err := newPersistentStore(cfg, opts.stdin)
	if err != nil {
		return err
	}
	store := checksumstore.NewLayered(persistent)

	cli, err := dockerbuild.NewClient()
	if err != nil {
		return err
	}
	backend := dockerbuild.NewBackend(cli, logger)
	registryClient := dockerbuild.NewRegistry(cli, logger)

	engine := fingerprint.New(container, nil)
	buildPlanner := planner.New(container, store, engine, backend, logger)

	built, buildErr := buildPlanner.BuildAll()
	if buildErr != nil {
		return buildErr
	}

	registries := make([]publish.Registry, len(cfg.Registries))
	copy(registries, cfg.Registries)

	builtImages := make(map[string]publish.BuiltImage, len(built))
	for id, result := range built {
		builtImages[id] = publish.BuiltImage{Identifier: id, ImageID: result.ImageID, Fingerprint: result.Fingerprint}
	}

	publisher := publish.New(registries, registryClient, registryClient, store, logger)
	publishErr := publisher.Publish(container.All(), builtImages)

	output, err := summarize(container, built, store, opts.builtOnly)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.stdout, string(encoded))

	return publishErr
}

// setKlogVerbosity maps the repeatable -v count onto klog's verbosity
// level.
func setKlogVerbosity(verbosity int) {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("v", strconv.Itoa(verbosity))
	_ = fs.Set("logtostderr", "true")
}

// applyChecksumOverrides lets --checksums-from-path/--checksums-from-consul-key
// replace the checksum_storage backend the configuration document chose.
func applyChecksumOverrides(cfg *config.Config, checksumPath, checksumConsulKey string) {
	switch {
	case checksumPath != "":
		cfg.ChecksumStorage.Type = config.StorageLocal
		cfg.ChecksumStorage.Path = checksumPath
	case checksumConsulKey != "":
		cfg.ChecksumStorage.Type = config.StorageConsul
		cfg.ChecksumStorage.Key = checksumConsulKey
	}
}

// newPersistentStore constructs the configured checksum_storage
// backend. Standard input is decoded to seed the in-memory store only
// when the backend is stdio; other backends never touch stdin.
func newPersistentStore(cfg *config.Config, stdin io.Reader) (checksumstore.Store, error) {
	switch cfg.ChecksumStorage.Type {
	case config.StorageLocal:
		return checksumstore.NewFile(cfg.ChecksumStorage.Path), nil
	case config.StorageConsul:
		return checksumstore.NewConsul(checksumstore.ConsulOptions{
			URL:     cfg.ChecksumStorage.URL,
			Token:   cfg.ChecksumStorage.Token,
			DataKey: cfg.ChecksumStorage.Key,
			LockKey: cfg.ChecksumStorage.Lock,
		})
	case config.StorageStdio, "":
		seed, err := readStdinSeed(stdin)
		if err != nil {
			return nil, err
		}
		return checksumstore.NewMemorySeeded(seed), nil
	default:
		return nil, thrifterr.InvalidCliArgument(fmt.Sprintf("unknown checksum_storage.type %q", cfg.ChecksumStorage.Type))
	}
}

// readStdinSeed decodes a JSON object {id: fingerprint} from stdin. An
// empty stdin (no pipe attached) seeds an empty store rather than
// failing.
func readStdinSeed(stdin io.Reader) (map[string]string, error) {
	content, err := io.ReadAll(stdin)
	if err != nil || len(content) == 0 {
		return map[string]string{}, nil
	}

	var seed map[string]string
	if err := json.Unmarshal(content, &seed); err != nil {
		return nil, thrifterr.UnreadableChecksumStorage(err)
	}
	return seed, nil
}

// summarize renders the final {id: fingerprint} object printed on
// stdout: every just-built image, plus, when builtOnly is false, every
// other managed image's current fingerprint from the store.
func summarize(
	container *buildconfig.Container,
	built map[string]planner.BuildResult,
	store *checksumstore.Layered,
	builtOnly bool,
) (map[string]string, error) {
	output := make(map[string]string, len(built))
	for id, result := range built {
		output[id] = result.Fingerprint
	}
	if builtOnly {
		return output, nil
	}

	for _, cfg := range container.All() {
		id := cfg.Identifier()
		if _, ok := output[id]; ok {
			continue
		}
		fp, ok, err := store.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			output[id] = fp
		}
	}
	return output, nil
}
