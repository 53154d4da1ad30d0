package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NodeType discriminates the nodes of a flow definition
type NodeType string

const (
	NodeGreeting NodeType = "greeting"
	NodeService  NodeType = "service"
	NodeDate     NodeType = "date"
	NodeTime     NodeType = "time"
	NodeStaff    NodeType = "staff"
	NodeConfirm  NodeType = "confirm"
)

// MaxBookingDays caps DateNode.Days
const MaxBookingDays = 30

// ErrInvalidFlow wraps every flow validation failure
var ErrInvalidFlow = errors.New("invalid flow definition")

// Node is one step of a tenant's booking flow
type Node interface {
	Type() NodeType
	validate() error
}

// GreetingNode opens the dialogue and lists the words that start a booking
type GreetingNode struct {
	Message  string   `json:"message"`
	Keywords []string `json:"keywords"`
}

// ServiceNode asks for a service
type ServiceNode struct {
	Prompt string `json:"prompt"`
}

// DateNode asks for a date among the next Days days
type DateNode struct {
	Prompt string `json:"prompt"`
	Days   int    `json:"days"`
}

// TimeNode asks for a time slot
type TimeNode struct {
	Prompt string `json:"prompt"`
}

// StaffNode asks for a staff member. Flows without it auto-assign the first one.
type StaffNode struct {
	Prompt string `json:"prompt"`
}

// ConfirmNode asks for the final go-ahead
type ConfirmNode struct {
	Prompt   string   `json:"prompt"`
	Keywords []string `json:"keywords"`
}

func (GreetingNode) Type() NodeType { return NodeGreeting }
func (ServiceNode) Type() NodeType  { return NodeService }
func (DateNode) Type() NodeType     { return NodeDate }
func (TimeNode) Type() NodeType     { return NodeTime }
func (StaffNode) Type() NodeType    { return NodeStaff }
func (ConfirmNode) Type() NodeType  { return NodeConfirm }

func (n GreetingNode) validate() error {
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: greeting message is required", ErrInvalidFlow)
	}
	if len(cleanKeywords(n.Keywords)) == 0 {
		return fmt.Errorf("%w: greeting needs at least one booking keyword", ErrInvalidFlow)
	}
	return checkKeywords("greeting", n.Keywords)
}

func (ServiceNode) validate() error { return nil }

func (n DateNode) validate() error {
	if n.Days < 0 || n.Days > MaxBookingDays {
		return fmt.Errorf("%w: date days must be between 1 and %d", ErrInvalidFlow, MaxBookingDays)
	}
	return nil
}

func (TimeNode) validate() error  { return nil }
func (StaffNode) validate() error { return nil }

func (n ConfirmNode) validate() error {
	if len(cleanKeywords(n.Keywords)) == 0 {
		return fmt.Errorf("%w: confirm needs at least one keyword", ErrInvalidFlow)
	}
	return checkKeywords("confirm", n.Keywords)
}

// FlowDefinition is a validated booking flow
type FlowDefinition struct {
	Greeting GreetingNode
	Service  ServiceNode
	Date     DateNode
	Time     TimeNode
	Staff    *StaffNode
	Confirm  ConfirmNode
}

// requiredOrder lists node types in the order they must appear; staff is optional
var requiredOrder = []NodeType{NodeGreeting, NodeService, NodeDate, NodeTime, NodeStaff, NodeConfirm}

// NewFlowDefinition validates node order and fields
func NewFlowDefinition(nodes ...Node) (*FlowDefinition, error) {
	def := &FlowDefinition{}
	pos := 0
	seen := make(map[NodeType]bool)

	for i, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("%w: node %d is nil", ErrInvalidFlow, i)
		}
		if err := node.validate(); err != nil {
			return nil, err
		}
		t := node.Type()
		if seen[t] {
			return nil, fmt.Errorf("%w: duplicate %s node", ErrInvalidFlow, t)
		}
		for pos < len(requiredOrder) && requiredOrder[pos] != t {
			if requiredOrder[pos] != NodeStaff {
				return nil, fmt.Errorf("%w: expected %s node before %s", ErrInvalidFlow, requiredOrder[pos], t)
			}
			pos++
		}
		if pos == len(requiredOrder) {
			return nil, fmt.Errorf("%w: %s node out of order", ErrInvalidFlow, t)
		}
		pos++
		seen[t] = true

		switch n := node.(type) {
		case GreetingNode:
			n.Keywords = cleanKeywords(n.Keywords)
			def.Greeting = n
		case ServiceNode:
			def.Service = n
		case DateNode:
			if n.Days == 0 {
				n.Days = DefaultBookingDays
			}
			def.Date = n
		case TimeNode:
			def.Time = n
		case StaffNode:
			staff := n
			def.Staff = &staff
		case ConfirmNode:
			n.Keywords = cleanKeywords(n.Keywords)
			def.Confirm = n
		default:
			return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidFlow, t)
		}
	}

	for _, t := range requiredOrder {
		if t != NodeStaff && !seen[t] {
			return nil, fmt.Errorf("%w: missing %s node", ErrInvalidFlow, t)
		}
	}
	return def, nil
}

// DefaultFlow is the fixed welcome → service → date → time → staff → confirmation table
func DefaultFlow() *FlowDefinition {
	def, err := NewFlowDefinition(
		GreetingNode{
			Message:  "👋 Welcome! I can help you book an appointment.\n\nType *book* to get started.",
			Keywords: BookingIntentKeywords,
		},
		ServiceNode{Prompt: "Which service would you like? Reply with the number or the name."},
		DateNode{Prompt: "Which date works for you? Reply with the number, a day name, or *tomorrow*.", Days: DefaultBookingDays},
		TimeNode{Prompt: "Which time would you like? Reply with the number or a time like *10am*."},
		StaffNode{Prompt: "Who would you like to see? Reply with the number or the name."},
		ConfirmNode{Prompt: "Reply *yes* to confirm or *cancel* to start over.", Keywords: ConfirmIntentKeywords},
	)
	if err != nil {
		panic(err)
	}
	return def
}

type rawNode struct {
	Type NodeType `json:"type"`
}

type rawFlow struct {
	Nodes []json.RawMessage `json:"nodes"`
}

// DecodeFlowDefinition parses a stored definition: {"nodes":[{"type":"greeting",...},...]}
func DecodeFlowDefinition(data []byte) (*FlowDefinition, error) {
	var raw rawFlow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}

	nodes := make([]Node, 0, len(raw.Nodes))
	for i, msg := range raw.Nodes {
		var head rawNode
		if err := json.Unmarshal(msg, &head); err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInvalidFlow, i, err)
		}
		var (
			node Node
			err  error
		)
		switch head.Type {
		case NodeGreeting:
			var n GreetingNode
			err = json.Unmarshal(msg, &n)
			node = n
		case NodeService:
			var n ServiceNode
			err = json.Unmarshal(msg, &n)
			node = n
		case NodeDate:
			var n DateNode
			err = json.Unmarshal(msg, &n)
			node = n
		case NodeTime:
			var n TimeNode
			err = json.Unmarshal(msg, &n)
			node = n
		case NodeStaff:
			var n StaffNode
			err = json.Unmarshal(msg, &n)
			node = n
		case NodeConfirm:
			var n ConfirmNode
			err = json.Unmarshal(msg, &n)
			node = n
		default:
			return nil, fmt.Errorf("%w: node %d has unknown type %q", ErrInvalidFlow, i, head.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInvalidFlow, i, err)
		}
		nodes = append(nodes, node)
	}
	return NewFlowDefinition(nodes...)
}

// prompt returns p unless it is blank
func prompt(p, fallback string) string {
	if strings.TrimSpace(p) == "" {
		return fallback
	}
	return p
}

// checkKeywords rejects keywords a customer message could never match
func checkKeywords(node string, keywords []string) error {
	for _, k := range cleanKeywords(keywords) {
		if len(keywordWords(k)) == 0 {
			return fmt.Errorf("%w: %s keyword %q has no letters or digits", ErrInvalidFlow, node, k)
		}
	}
	return nil
}

func cleanKeywords(keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
