package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/market"
	"vitrine/services/contentstore"
	"vitrine/services/payments"

	coreid "vitrine/core/identity"
)

// seedFile describes fixtures applied to an empty marketplace.
type seedFile struct {
	Funds      []seedAmount     `yaml:"funds"`
	Credits    []seedAmount     `yaml:"credits"`
	Reputation []seedReputation `yaml:"reputation"`
	Personas   []seedPersona    `yaml:"personas"`
	Products   []seedProduct    `yaml:"products"`
	Links      []seedLink       `yaml:"links"`
}

type seedAmount struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

type seedReputation struct {
	Address string `yaml:"address"`
	Delta   int64  `yaml:"delta"`
}

type seedPersona struct {
	Address string `yaml:"address"`
	Hash    string `yaml:"hash"`
}

type seedProduct struct {
	Seller        string `yaml:"seller"`
	Price         string `yaml:"price"`
	CommissionBps uint16 `yaml:"commissionBps"`
	Metadata      string `yaml:"metadata"`
	Inactive      bool   `yaml:"inactive"`
}

// seedLink references a product by its position in the products list,
// starting at 1.
type seedLink struct {
	Promoter string `yaml:"promoter"`
	Product  int    `yaml:"product"`
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	seed := new(seedFile)
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

func seedAddress(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("seed %s %q: %w", field, value, err)
	}
	return addr, nil
}

func seedBig(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("seed %s: invalid amount %q", field, value)
	}
	return amount, nil
}

// applySeed replays the fixtures through the marketplace so every write
// goes through the same validation and events as live traffic.
func applySeed(ctx context.Context, m *market.Marketplace, rail *payments.MemoryRail, store contentstore.Store, seed *seedFile) error {
	for _, f := range seed.Funds {
		addr, err := seedAddress("funds.address", f.Address)
		if err != nil {
			return err
		}
		amount, err := seedBig("funds.amount", f.Amount)
		if err != nil {
			return err
		}
		if rail == nil {
			return fmt.Errorf("seed funds require the in-process payment rail")
		}
		if err := rail.Fund(addr, amount); err != nil {
			return fmt.Errorf("seed funds %s: %w", f.Address, err)
		}
	}
	for _, c := range seed.Credits {
		addr, err := seedAddress("credits.address", c.Address)
		if err != nil {
			return err
		}
		amount, err := seedBig("credits.amount", c.Amount)
		if err != nil {
			return err
		}
		if err := m.AdminCredit(ctx, addr, amount); err != nil {
			return fmt.Errorf("seed credit %s: %w", c.Address, err)
		}
	}
	for _, r := range seed.Reputation {
		addr, err := seedAddress("reputation.address", r.Address)
		if err != nil {
			return err
		}
		if _, err := m.UpdateReputation(ctx, addr, r.Delta); err != nil {
			return fmt.Errorf("seed reputation %s: %w", r.Address, err)
		}
	}
	for _, p := range seed.Personas {
		addr, err := seedAddress("personas.address", p.Address)
		if err != nil {
			return err
		}
		hash, err := coreid.ParseHash(p.Hash)
		if err != nil {
			return fmt.Errorf("seed persona %s: %w", p.Address, err)
		}
		if err := m.RegisterPersona(ctx, addr, hash); err != nil {
			return fmt.Errorf("seed persona %s: %w", p.Address, err)
		}
	}
	productIDs := make([]uint64, 0, len(seed.Products))
	for i, p := range seed.Products {
		seller, err := seedAddress("products.seller", p.Seller)
		if err != nil {
			return err
		}
		price, err := seedBig("products.price", p.Price)
		if err != nil {
			return err
		}
		var ref types.ContentID
		if p.Metadata != "" && store != nil {
			ref, err = store.Store(ctx, []byte(p.Metadata))
			if err != nil {
				return fmt.Errorf("seed product %d metadata: %w", i+1, err)
			}
		}
		id, err := m.ListProduct(ctx, seller, price, p.CommissionBps, ref)
		if err != nil {
			return fmt.Errorf("seed product %d: %w", i+1, err)
		}
		if p.Inactive {
			if err := m.UpdateProduct(ctx, seller, id, price, false); err != nil {
				return fmt.Errorf("seed product %d: %w", i+1, err)
			}
		}
		productIDs = append(productIDs, id)
	}
	for _, l := range seed.Links {
		promoter, err := seedAddress("links.promoter", l.Promoter)
		if err != nil {
			return err
		}
		if l.Product < 1 || l.Product > len(productIDs) {
			return fmt.Errorf("seed link: product index %d out of range", l.Product)
		}
		if _, err := m.RegisterLink(ctx, promoter, productIDs[l.Product-1]); err != nil {
			return fmt.Errorf("seed link %s: %w", l.Promoter, err)
		}
	}
	return nil
}
