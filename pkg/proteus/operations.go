package proteus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/proteus/pkg/log"
	"github.com/raterudder/proteus/pkg/types"
)

// Operation names a fixed batch of procedures in the catalogue.
type Operation string

const (
	OpActiveControlPlan         Operation = "active-control-plan"
	OpInverterDetail            Operation = "inverter-detail"
	OpLinkBoxConnectionState    Operation = "link-box-connection-state"
	OpCurrentCommands           Operation = "current-commands"
	OpCurrentStep               Operation = "current-step"
	OpCurrentDistributionPrices Operation = "current-distribution-prices"
	OpWSToken                   Operation = "ws-token"
	OpExtendedDetail            Operation = "extended-detail"
	OpLastState                 Operation = "last-state"
	OpFlexibilityRewardsSummary Operation = "flexibility-rewards-summary"
	OpInverterList              Operation = "inverter-list"
	OpInverterPlanPage          Operation = "inverter-plan-page"
	// OpDashboardSummary leaves out the procedures that tend to hit the
	// backend's rate limit and the ones that need a household.
	OpDashboardSummary Operation = "dashboard-summary"
	// OpDashboardSnapshot is every read-only procedure in one request.
	OpDashboardSnapshot Operation = "dashboard-snapshot"
)

// inputShape says how the input for a procedure is filled in from the
// client's target.
type inputShape int

const (
	inputInverter inputShape = iota
	inputHousehold
	inputEmpty
	inputListMeta
)

type procedureDef struct {
	name  string
	input inputShape
	// optional procedures are left out of the batch when the target lacks
	// the ID they need
	optional bool
}

const (
	procControlPlansActive        = "controlPlans.active"
	procInvertersDetail           = "inverters.detail"
	procLinkBoxesConnectionState  = "linkBoxes.connectionState"
	procCommandsCurrent           = "commands.current"
	procInvertersCurrentStep      = "inverters.currentStep"
	procPricesCurrentDistribution = "prices.currentDistributionPrices"
	procUsersWSToken              = "users.wsToken"
	procInvertersExtendedDetail   = "inverters.extendedDetail"
	procInvertersLastState        = "inverters.lastState"
	procInvertersRewardsSummary   = "inverters.flexibilityRewardsSummary"
	procInvertersList             = "inverters.list"
)

var (
	controlPlansActive        = procedureDef{name: procControlPlansActive, input: inputInverter}
	invertersDetail           = procedureDef{name: procInvertersDetail, input: inputInverter}
	linkBoxesConnectionState  = procedureDef{name: procLinkBoxesConnectionState, input: inputHousehold}
	commandsCurrent           = procedureDef{name: procCommandsCurrent, input: inputInverter}
	invertersCurrentStep      = procedureDef{name: procInvertersCurrentStep, input: inputInverter}
	pricesCurrentDistribution = procedureDef{name: procPricesCurrentDistribution, input: inputInverter}
	usersWSToken              = procedureDef{name: procUsersWSToken, input: inputEmpty}
	invertersExtendedDetail   = procedureDef{name: procInvertersExtendedDetail, input: inputInverter}
	invertersLastState        = procedureDef{name: procInvertersLastState, input: inputInverter}
	invertersRewardsSummary   = procedureDef{name: procInvertersRewardsSummary, input: inputInverter}
	invertersList             = procedureDef{name: procInvertersList, input: inputListMeta}

	// inverters.list never reports a household so the snapshot has to work
	// without one
	optionalLinkBoxesConnectionState = procedureDef{name: procLinkBoxesConnectionState, input: inputHousehold, optional: true}
)

// operations is the catalogue. The order of procedures is the order of the
// batch and therefore the order of the response.
var operations = map[Operation][]procedureDef{
	OpActiveControlPlan:         {controlPlansActive},
	OpInverterDetail:            {invertersDetail},
	OpLinkBoxConnectionState:    {linkBoxesConnectionState},
	OpCurrentCommands:           {commandsCurrent},
	OpCurrentStep:               {invertersCurrentStep},
	OpCurrentDistributionPrices: {pricesCurrentDistribution},
	OpWSToken:                   {usersWSToken},
	OpExtendedDetail:            {invertersExtendedDetail},
	OpLastState:                 {invertersLastState},
	OpFlexibilityRewardsSummary: {invertersRewardsSummary},
	OpInverterList:              {invertersList},
	OpInverterPlanPage: {
		linkBoxesConnectionState,
		invertersDetail,
		controlPlansActive,
	},
	OpDashboardSummary: {
		commandsCurrent,
		invertersCurrentStep,
		usersWSToken,
		invertersExtendedDetail,
		invertersLastState,
		invertersRewardsSummary,
		controlPlansActive,
	},
	OpDashboardSnapshot: {
		optionalLinkBoxesConnectionState,
		invertersDetail,
		commandsCurrent,
		invertersCurrentStep,
		pricesCurrentDistribution,
		usersWSToken,
		invertersExtendedDetail,
		invertersLastState,
		invertersRewardsSummary,
		controlPlansActive,
	},
}

// Operations lists every operation in the catalogue in a stable order.
func Operations() []Operation {
	return []Operation{
		OpActiveControlPlan,
		OpInverterDetail,
		OpLinkBoxConnectionState,
		OpCurrentCommands,
		OpCurrentStep,
		OpCurrentDistributionPrices,
		OpWSToken,
		OpExtendedDetail,
		OpLastState,
		OpFlexibilityRewardsSummary,
		OpInverterList,
		OpInverterPlanPage,
		OpDashboardSummary,
		OpDashboardSnapshot,
	}
}

// Procedures returns the procedures an operation is made of, in batch order.
func (op Operation) Procedures() ([]string, error) {
	defs, ok := operations[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	names := make([]string, len(defs))
	for i, s := range defs {
		names[i] = s.name
	}
	return names, nil
}

func (s procedureDef) call(t types.Target) (types.Call, error) {
	switch s.input {
	case inputInverter:
		if t.InverterID == "" {
			return types.Call{}, ErrMissingInverterID
		}
		return types.NewCall(s.name, map[string]any{"inverterId": t.InverterID}), nil
	case inputHousehold:
		if t.HouseholdID == "" {
			return types.Call{}, ErrMissingHouseholdID
		}
		return types.NewCall(s.name, map[string]any{"householdId": t.HouseholdID}), nil
	case inputEmpty:
		return types.NewCall(s.name, map[string]any{}), nil
	case inputListMeta:
		return types.Call{
			Procedure: s.name,
			Input:     nil,
			Meta:      map[string]any{"values": []string{"undefined"}},
		}, nil
	default:
		return types.Call{}, fmt.Errorf("unknown input shape %d for %s", s.input, s.name)
	}
}

// Calls returns the batch an operation would send for the given target.
// Optional procedures whose ID is missing from the target are skipped, so
// the batch can be shorter than Procedures.
func (op Operation) Calls(t types.Target) ([]types.Call, error) {
	defs, ok := operations[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	calls := make([]types.Call, 0, len(defs))
	for _, s := range defs {
		c, err := s.call(t)
		if s.optional && (errors.Is(err, ErrMissingHouseholdID) || errors.Is(err, ErrMissingInverterID)) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// Run issues the batch for op against the client's current target.
func (c *Client) Run(ctx context.Context, op Operation) ([]types.Result, error) {
	_, _, results, err := c.run(ctx, op)
	return results, err
}

// run reads the target once and returns it along with the batch that was
// built for it.
func (c *Client) run(ctx context.Context, op Operation) (types.Target, []types.Call, []types.Result, error) {
	if !c.Authenticated() {
		return types.Target{}, nil, nil, &AuthError{Reason: ReasonUnauthenticated}
	}

	target := c.Target()
	calls, err := op.Calls(target)
	if err != nil {
		return target, nil, nil, err
	}

	if c.cache != nil {
		if results, ok := c.cache.get(op, target); ok {
			log.Ctx(ctx).DebugContext(ctx, "proteus operation served from cache", slog.String("operation", string(op)))
			return target, calls, results, nil
		}
	}

	results, err := c.Call(ctx, calls)
	if err != nil {
		return target, calls, nil, err
	}
	if c.cache != nil {
		c.cache.set(op, target, results)
	}
	return target, calls, results, nil
}

// ActiveControlPlan returns the control plan the optimizer is executing.
func (c *Client) ActiveControlPlan(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpActiveControlPlan)
}

func (c *Client) InverterDetail(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpInverterDetail)
}

func (c *Client) LinkBoxConnectionState(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpLinkBoxConnectionState)
}

func (c *Client) CurrentCommands(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpCurrentCommands)
}

func (c *Client) CurrentStep(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpCurrentStep)
}

func (c *Client) CurrentDistributionPrices(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpCurrentDistributionPrices)
}

// WSToken returns a token for the backend's websocket feed.
func (c *Client) WSToken(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpWSToken)
}

func (c *Client) ExtendedDetail(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpExtendedDetail)
}

func (c *Client) LastState(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpLastState)
}

func (c *Client) FlexibilityRewardsSummary(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpFlexibilityRewardsSummary)
}

// InverterList returns the raw inverters.list lines. See DiscoverInverters
// for the parsed version.
func (c *Client) InverterList(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpInverterList)
}

// InverterPlanPage is the batch the web app issues for its plan page.
func (c *Client) InverterPlanPage(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpInverterPlanPage)
}

func (c *Client) DashboardSummary(ctx context.Context) ([]types.Result, error) {
	return c.Run(ctx, OpDashboardSummary)
}

// DashboardSnapshot fetches every read-only procedure in a single request.
// Procedures that need a household are left out when none is configured and
// the snapshot only lists what was actually sent.
func (c *Client) DashboardSnapshot(ctx context.Context) (types.Snapshot, error) {
	target, calls, results, err := c.run(ctx, OpDashboardSnapshot)
	if err != nil {
		return types.Snapshot{}, err
	}
	return types.Snapshot{
		InverterID: target.InverterID,
		Timestamp:  time.Now(),
		Procedures: procedureNames(calls),
		Results:    results,
	}, nil
}
