package proteus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/stream"
	"github.com/raterudder/proteus/pkg/types"
)

// ErrNoInverters is returned when the account has no inverters.
var ErrNoInverters = errors.New("no inverters found for this account")

// DiscoverInverters lists the inverters that belong to the logged-in user.
func (c *Client) DiscoverInverters(ctx context.Context) ([]types.Inverter, error) {
	results, err := c.InverterList(ctx)
	if err != nil {
		return nil, err
	}
	return parseInverters(results), nil
}

func parseInverters(results []types.Result) []types.Inverter {
	var inverters []types.Inverter
	for _, obj := range stream.Payloads(results) {
		id, _ := obj["id"].(string)
		if id == "" {
			continue
		}
		inv := types.Inverter{ID: id}
		inv.HouseholdID, _ = obj["householdId"].(string)
		inv.Name, _ = obj["name"].(string)
		if inv.Name == "" {
			inv.Name = "Inverter " + id[:min(8, len(id))]
		}
		inv.Vendor, _ = obj["vendor"].(string)
		if inv.Vendor == "" {
			inv.Vendor = "Unknown"
		}
		inv.ControlMode, _ = obj["controlMode"].(string)
		inv.ControlEnabled, _ = obj["controlEnabled"].(bool)
		inverters = append(inverters, inv)
	}
	return inverters
}

// UseFirstInverter targets the first inverter of the account unless an
// inverter is already configured. The household is only filled in when the
// backend reports one and none was configured.
func (c *Client) UseFirstInverter(ctx context.Context) (types.Target, error) {
	target := c.Target()
	if target.InverterID != "" {
		return target, nil
	}

	inverters, err := c.DiscoverInverters(ctx)
	if err != nil {
		return target, fmt.Errorf("failed to discover inverters: %w", err)
	}
	if len(inverters) == 0 {
		return target, ErrNoInverters
	}

	first := inverters[0]
	target.InverterID = first.ID
	if target.HouseholdID == "" {
		target.HouseholdID = first.HouseholdID
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"automatically selected inverter",
		slog.String("inverterID", first.ID),
		slog.String("name", first.Name),
		slog.Int("found", len(inverters)),
	)
	c.SetTarget(target)
	return target, nil
}
