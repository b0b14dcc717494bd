package app

import (
	"fmt"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/config"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/pipeline"
	"github.com/JaimeStill/expedite/pkg/rules"
)

// Runtime builds the pipeline runtime for variant.
func (d *Domain) Runtime(variant string) (*pipeline.Runtime, error) {
	vc, err := d.Config.Variants.Get(variant)
	if err != nil {
		return nil, err
	}

	logger := d.Logger.With("module", "pipeline")
	opts := delivery.Options{
		Variant:   variant,
		BasePath:  vc.BasePath,
		Threshold: vc.SizeThresholdBytes(),
		Chain:     delivery.DefaultChain(d.Drive, d.Config.Delivery.ShareRole),
	}

	var (
		assembler assembly.Assembler
		strategy  delivery.Strategy
	)
	switch variant {
	case config.VariantMerge:
		assembler = assembly.NewMergeAssembler(logger)
		strategy = delivery.NewMergeStrategy(d.Drive, d.Notifier, d.Notifier, opts, logger)
	case config.VariantFolder:
		assembler = assembly.NewFolderAssembler(logger)
		strategy = delivery.NewFolderStrategy(d.Drive, d.Notifier, d.Notifier, opts, logger)
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}

	rt := &pipeline.Runtime{
		Variant:         variant,
		BotCode:         vc.BotCode,
		Production:      d.Config.Production(),
		Tags:            vc.Tags(),
		WorkDir:         d.Config.WorkDir,
		CallTimeout:     d.Config.CallTimeoutDuration(),
		DeliveryTimeout: d.Config.DeliveryTimeoutDuration(),
		Logger:          logger,
		Gate:            d.Gate,
		Filter:          rules.NewFilter(vc.Rules),
		Locker:          d.Locker,
		Cases:           d.Cases,
		Documents:       d.Documents,
		Assembler:       assembler,
		Strategy:        strategy,
		Notifier:        d.Notifier,
		Recipients:      d.Recipients,
	}
	if d.Reports != nil {
		rt.History = d.Reports
	}
	if d.Publisher != nil {
		rt.Publisher = d.Publisher
	}
	if d.Metrics != nil {
		rt.Metrics = d.Metrics
	}
	for _, p := range d.extraPings() {
		rt.Probes = append(rt.Probes, pipeline.Probe{Name: p.name, Ping: p.ping})
	}
	return rt, nil
}
