// Package breakpoints holds the breakpoint model of the extension host and
// keeps it in sync with the main thread.
//
// Breakpoints come in three variants (source, function, data). Each has a
// globally unique string id; the Store holds at most one breakpoint per id.
// Breakpoint fields are only mutated by the Store that owns them.
package breakpoints

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ctagard/dap-exthost/pkg/types"
)

// Kind identifies a breakpoint variant.
type Kind int

const (
	// KindSource is a breakpoint at a file location.
	KindSource Kind = iota
	// KindFunction is a breakpoint on a function name.
	KindFunction
	// KindData is a breakpoint on a data id (a watchpoint).
	KindData
)

// String returns the DTO tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return types.BreakpointSource
	case KindFunction:
		return types.BreakpointFunction
	case KindData:
		return types.BreakpointData
	default:
		return "unknown"
	}
}

// Location is a zero-based position in a document.
type Location struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

// Options are the fields shared by every variant.
type Options struct {
	Enabled      bool
	Condition    string
	HitCondition string
	LogMessage   string
}

// Breakpoint is implemented by *SourceBreakpoint, *FunctionBreakpoint and
// *DataBreakpoint only.
type Breakpoint interface {
	ID() string
	Kind() Kind
	Enabled() bool
	Condition() string
	HitCondition() string
	LogMessage() string

	// DTO returns the single-breakpoint wire form.
	DTO() types.BreakpointDTO

	base() *common
}

type common struct {
	mu           sync.RWMutex
	id           string
	enabled      bool
	condition    string
	hitCondition string
	logMessage   string
}

func newCommon(id string, opts Options) common {
	if id == "" {
		id = uuid.NewString()
	}
	return common{
		id:           id,
		enabled:      opts.Enabled,
		condition:    opts.Condition,
		hitCondition: opts.HitCondition,
		logMessage:   opts.LogMessage,
	}
}

func (c *common) base() *common { return c }

// ID returns the breakpoint id.
func (c *common) ID() string { return c.id }

// Enabled reports whether the breakpoint is enabled.
func (c *common) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Condition returns the condition expression.
func (c *common) Condition() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.condition
}

// HitCondition returns the hit count condition.
func (c *common) HitCondition() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hitCondition
}

// LogMessage returns the log point message.
func (c *common) LogMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logMessage
}

// caller holds c.mu
func (c *common) fill(dto *types.BreakpointDTO) {
	dto.ID = c.id
	dto.Enabled = c.enabled
	dto.Condition = c.condition
	dto.HitCondition = c.hitCondition
	dto.LogMessage = c.logMessage
}

// caller holds c.mu
func (c *common) apply(dto types.BreakpointDTO) {
	c.enabled = dto.Enabled
	c.condition = dto.Condition
	c.hitCondition = dto.HitCondition
	c.logMessage = dto.LogMessage
}

// SourceBreakpoint is a breakpoint at a file location.
type SourceBreakpoint struct {
	common
	location Location
}

// NewSourceBreakpoint creates a source breakpoint with a fresh id.
func NewSourceBreakpoint(loc Location, opts Options) *SourceBreakpoint {
	return &SourceBreakpoint{common: newCommon("", opts), location: loc}
}

// Kind returns KindSource.
func (b *SourceBreakpoint) Kind() Kind { return KindSource }

// Location returns the breakpoint location.
func (b *SourceBreakpoint) Location() Location {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.location
}

// DTO returns the "source" wire form.
func (b *SourceBreakpoint) DTO() types.BreakpointDTO {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dto := types.BreakpointDTO{
		Type:      types.BreakpointSource,
		URI:       b.location.URI,
		Line:      b.location.Line,
		Character: b.location.Character,
	}
	b.fill(&dto)
	return dto
}

func (b *SourceBreakpoint) line() types.SourceLineDTO {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return types.SourceLineDTO{
		ID:           b.id,
		Enabled:      b.enabled,
		Condition:    b.condition,
		HitCondition: b.hitCondition,
		LogMessage:   b.logMessage,
		Line:         b.location.Line,
		Character:    b.location.Character,
	}
}

// FunctionBreakpoint is a breakpoint on a function name.
type FunctionBreakpoint struct {
	common
	functionName string
}

// NewFunctionBreakpoint creates a function breakpoint with a fresh id.
func NewFunctionBreakpoint(functionName string, opts Options) *FunctionBreakpoint {
	return &FunctionBreakpoint{common: newCommon("", opts), functionName: functionName}
}

// Kind returns KindFunction.
func (b *FunctionBreakpoint) Kind() Kind { return KindFunction }

// FunctionName returns the function the breakpoint is set on.
func (b *FunctionBreakpoint) FunctionName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.functionName
}

// DTO returns the "function" wire form.
func (b *FunctionBreakpoint) DTO() types.BreakpointDTO {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dto := types.BreakpointDTO{
		Type:         types.BreakpointFunction,
		FunctionName: b.functionName,
	}
	b.fill(&dto)
	return dto
}

// DataBreakpoint is a breakpoint on a data id.
type DataBreakpoint struct {
	common
	label      string
	dataID     string
	canPersist bool
}

// NewDataBreakpoint creates a data breakpoint with a fresh id.
func NewDataBreakpoint(label, dataID string, canPersist bool, opts Options) *DataBreakpoint {
	return &DataBreakpoint{
		common:     newCommon("", opts),
		label:      label,
		dataID:     dataID,
		canPersist: canPersist,
	}
}

// Kind returns KindData.
func (b *DataBreakpoint) Kind() Kind { return KindData }

// Label returns the display label.
func (b *DataBreakpoint) Label() string { return b.label }

// DataID returns the adapter-specific data id.
func (b *DataBreakpoint) DataID() string { return b.dataID }

// CanPersist reports whether the breakpoint survives a session.
func (b *DataBreakpoint) CanPersist() bool { return b.canPersist }

// DTO returns the "data" wire form.
func (b *DataBreakpoint) DTO() types.BreakpointDTO {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dto := types.BreakpointDTO{
		Type:       types.BreakpointData,
		Label:      b.label,
		DataID:     b.dataID,
		CanPersist: b.canPersist,
	}
	b.fill(&dto)
	return dto
}

// fromDTOs materializes the variants described by a DTO. A sourceMulti DTO
// yields one breakpoint per line; an unknown tag yields nothing.
func fromDTOs(dto types.BreakpointDTO) []Breakpoint {
	opts := Options{
		Enabled:      dto.Enabled,
		Condition:    dto.Condition,
		HitCondition: dto.HitCondition,
		LogMessage:   dto.LogMessage,
	}
	switch dto.Type {
	case types.BreakpointSource:
		return []Breakpoint{&SourceBreakpoint{
			common:   newCommon(dto.ID, opts),
			location: Location{URI: dto.URI, Line: dto.Line, Character: dto.Character},
		}}
	case types.BreakpointSourceMulti:
		out := make([]Breakpoint, 0, len(dto.Lines))
		for _, l := range dto.Lines {
			out = append(out, &SourceBreakpoint{
				common: newCommon(l.ID, Options{
					Enabled:      l.Enabled,
					Condition:    l.Condition,
					HitCondition: l.HitCondition,
					LogMessage:   l.LogMessage,
				}),
				location: Location{URI: dto.URI, Line: l.Line, Character: l.Character},
			})
		}
		return out
	case types.BreakpointFunction:
		return []Breakpoint{&FunctionBreakpoint{
			common:       newCommon(dto.ID, opts),
			functionName: dto.FunctionName,
		}}
	case types.BreakpointData:
		return []Breakpoint{&DataBreakpoint{
			common:     newCommon(dto.ID, opts),
			label:      dto.Label,
			dataID:     dto.DataID,
			canPersist: dto.CanPersist,
		}}
	}
	return nil
}

// applyChange mutates bp from dto if the variants match.
func applyChange(bp Breakpoint, dto types.BreakpointDTO) bool {
	switch b := bp.(type) {
	case *SourceBreakpoint:
		if dto.Type != types.BreakpointSource {
			return false
		}
		b.mu.Lock()
		b.apply(dto)
		b.location = Location{URI: dto.URI, Line: dto.Line, Character: dto.Character}
		b.mu.Unlock()
	case *FunctionBreakpoint:
		if dto.Type != types.BreakpointFunction {
			return false
		}
		b.mu.Lock()
		b.apply(dto)
		b.functionName = dto.FunctionName
		b.mu.Unlock()
	case *DataBreakpoint:
		// the data id and its label identify the watched data and stay fixed
		if dto.Type != types.BreakpointData {
			return false
		}
		b.mu.Lock()
		b.apply(dto)
		b.mu.Unlock()
	default:
		return false
	}
	return true
}

// ToDTOs converts breakpoints to the shape registered with the main thread:
// source breakpoints are grouped per URI into one sourceMulti DTO (in order of
// first appearance), function and data breakpoints are emitted individually.
func ToDTOs(bps []Breakpoint) []types.BreakpointDTO {
	var dtos []types.BreakpointDTO
	multi := make(map[string]int)
	for _, bp := range bps {
		sbp, ok := bp.(*SourceBreakpoint)
		if !ok {
			dtos = append(dtos, bp.DTO())
			continue
		}
		uri := sbp.Location().URI
		idx, found := multi[uri]
		if !found {
			idx = len(dtos)
			multi[uri] = idx
			dtos = append(dtos, types.BreakpointDTO{Type: types.BreakpointSourceMulti, URI: uri})
		}
		dtos[idx].Lines = append(dtos[idx].Lines, sbp.line())
	}
	return dtos
}
