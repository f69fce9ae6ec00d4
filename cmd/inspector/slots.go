package main

import (
	"fmt"
	"math/big"

	"github.com/fystack/storage-inspector/pkg/common/config"
	"github.com/fystack/storage-inspector/pkg/storage/slot"
)

type SlotsCmd struct {
	Slot       string `help:"Declaration slot (decimal or 0x hex)." required:"" name:"slot"`
	MappingKey string `help:"Treat the array as mapping[key], hex or decimal key." name:"mapping-key"`
	Index      string `help:"Element index to derive." name:"index"`
	Width      uint64 `help:"Words per element." default:"1" name:"width"`
}

func (c *SlotsCmd) Run() error {
	decl, err := slot.Parse(c.Slot)
	if err != nil {
		return err
	}

	if c.MappingKey != "" {
		key, err := config.ParseMappingKey(c.MappingKey)
		if err != nil {
			return err
		}
		if decl, err = slot.ResolveMappingSlot(key, decl); err != nil {
			return err
		}
		fmt.Printf("mapping value slot: %s\n", slot.Key(decl).Hex())
	}

	area, err := slot.ResolveArrayBase(decl)
	if err != nil {
		return err
	}
	fmt.Printf("length slot:        %s\n", slot.Key(decl).Hex())
	fmt.Printf("data area slot:     %s\n", slot.Key(area).Hex())

	if c.Index == "" {
		return nil
	}
	index, err := slot.Parse(c.Index)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	el, err := slot.ResolveElementSlot(area, index, c.Width)
	if err != nil {
		return err
	}
	for w := uint64(0); w < c.Width; w++ {
		word := new(big.Int).Add(el, new(big.Int).SetUint64(w))
		fmt.Printf("element %s word %d:  %s\n", index, w, slot.Key(word).Hex())
	}
	return nil
}
