package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/fystack/storage-inspector/internal/decoder"
	"github.com/fystack/storage-inspector/internal/events"
	"github.com/fystack/storage-inspector/internal/reader"
	"github.com/fystack/storage-inspector/internal/render"
	"github.com/fystack/storage-inspector/pkg/common/config"
	"github.com/fystack/storage-inspector/pkg/common/constant"
	"github.com/fystack/storage-inspector/pkg/common/enum"
	"github.com/fystack/storage-inspector/pkg/common/logger"
	"github.com/fystack/storage-inspector/pkg/infra"
	"github.com/fystack/storage-inspector/pkg/storage/codec"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

type DecodeCmd struct {
	ConfigPath  string `help:"Path to config file." default:"${config}" name:"config"`
	Contract    string `help:"Contract name from the config." required:"" name:"contract"`
	Array       string `help:"Array name; all arrays of the contract when empty." name:"array"`
	Block       string `help:"Block number (decimal or 0x hex); pins every read." name:"block"`
	From        uint64 `help:"First element index." default:"0" name:"from"`
	Count       uint64 `help:"Number of elements, 0 for all." default:"0" name:"count"`
	Format      string `help:"Output format." enum:"text,json,csv" default:"text" name:"format"`
	Concurrency int    `help:"Parallel element reads, overrides config." name:"concurrency"`
	NoPin       bool   `help:"Read at latest instead of pinning the head block." name:"no-pin"`
	Publish     bool   `help:"Publish snapshots to NATS." name:"publish"`
	Debug       bool   `help:"Enable debug logs." name:"debug"`
}

func (c *DecodeCmd) Run() error {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogger(cfg.Log.Level, c.Debug, cfg.Log.NoColor)

	contract, err := cfg.GetContract(c.Contract)
	if err != nil {
		return err
	}
	arrays, err := c.selectArrays(contract)
	if err != nil {
		return err
	}
	opts, err := c.decoderOptions(cfg.Decoder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := reader.NewFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	var emitter events.Emitter
	if c.Publish || cfg.NATS.Enabled {
		if emitter, err = newEmitter(ctx, cfg); err != nil {
			return err
		}
		defer emitter.Close()
	}

	dec := decoder.New(r, opts...)
	address := common.HexToAddress(contract.Address)
	count := c.Count
	if count == 0 {
		count = math.MaxUint64
	}

	failed := 0
	for _, arr := range arrays {
		resolved, err := arr.Resolve()
		if err != nil {
			return err
		}
		desc := decoder.ArrayDescriptor{Name: arr.Name, Slot: resolved.Slot, Layout: resolved.Layout}

		result, err := dec.DecodeRange(ctx, address, desc, c.From, count)
		if err != nil {
			return err
		}
		if err := c.render(os.Stdout, contract.Name, arr, resolved, result); err != nil {
			return err
		}
		if emitter != nil {
			if err := emitter.EmitSnapshot(ctx, contract.Name, result); err != nil {
				return fmt.Errorf("publish snapshot: %w", err)
			}
			logger.Info("Snapshot published", "contract", contract.Name, "array", arr.Name)
		}
		failed += len(result.Errors)
	}

	if failed > 0 {
		return fmt.Errorf("%d elements could not be decoded", failed)
	}
	return nil
}

func (c *DecodeCmd) selectArrays(contract config.ContractConfig) ([]config.ArrayConfig, error) {
	if c.Array != "" {
		arr, err := contract.GetArray(c.Array)
		if err != nil {
			return nil, err
		}
		return []config.ArrayConfig{arr}, nil
	}

	names := lo.Keys(contract.Arrays)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) config.ArrayConfig { return contract.Arrays[name] }), nil
}

func (c *DecodeCmd) decoderOptions(dc config.DecoderConfig) ([]decoder.Option, error) {
	var opts []decoder.Option

	concurrency := dc.Concurrency
	if c.Concurrency > 0 {
		concurrency = c.Concurrency
	}
	opts = append(opts, decoder.WithConcurrency(concurrency))
	if dc.MaxLength > 0 {
		opts = append(opts, decoder.WithMaxLength(dc.MaxLength))
	}

	if c.Block != "" {
		block, err := slot.Parse(c.Block)
		if err != nil {
			return nil, fmt.Errorf("invalid block %q: %w", c.Block, err)
		}
		opts = append(opts, decoder.WithBlock(block))
	}
	if c.NoPin || (dc.PinBlock != nil && !*dc.PinBlock) {
		opts = append(opts, decoder.WithoutPinning())
	}
	return opts, nil
}

func (c *DecodeCmd) render(w io.Writer, contract string, arr config.ArrayConfig, resolved config.ResolvedArray, result *decoder.Result) error {
	opts := render.Options{
		Contract: contract,
		Formats:  make(map[string]render.FieldFormat, len(arr.Fields)),
	}
	for _, f := range arr.Fields {
		if f.Decimals > 0 || f.Unit != "" {
			opts.Formats[f.Name] = render.FieldFormat{Decimals: f.Decimals, Unit: f.Unit}
		}
	}
	opts.Columns = lo.Map(resolved.Layout.Fields, func(p codec.Placement, _ int) string { return p.Name })

	r, err := render.New(enum.OutputFormat(c.Format), opts)
	if err != nil {
		return err
	}
	return r.Render(w, result)
}

func newEmitter(ctx context.Context, cfg *config.Config) (events.Emitter, error) {
	nc, err := infra.GetNATSConnection(cfg.NATS, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	subject := cfg.NATS.Subject
	if subject == "" {
		subject = constant.DefaultSubject
	}

	var publisher infra.Publisher
	if cfg.NATS.JetStream {
		stream := cfg.NATS.Stream
		if stream == "" {
			stream = "storage"
		}
		publisher, err = infra.NewJetStreamPublisher(ctx, nc, stream, []string{subject})
		if err != nil {
			nc.Close()
			return nil, err
		}
	} else {
		publisher = infra.NewNATSPublisher(nc)
	}
	return events.NewEmitter(publisher, subject), nil
}
