// Package graph reconstructs a renderable execution tree from the flat
// collection of state execution instances of one run.
//
// The instance log is a reified call tree with back-references only: each
// instance points at its container (parent) and at the instance that ran
// before it at the same nesting level (prev). The renderer rebuilds the tree
// read-side from two index maps built in a single pass over the collection.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/runwayci/runway/pkg/models"
	"github.com/runwayci/runway/pkg/status"
)

// ErrInconsistentGraph marks a malformed instance collection: duplicated
// next-pointers, mismatched aggregation batches, partially broken chains.
// These are programming errors in the writer, not valid run shapes, and are
// never silently repaired.
var ErrInconsistentGraph = errors.New("inconsistent execution graph")

// AggregationLimit is the repeat-element count at which sibling elements are
// bucketed into a single aggregate node instead of rendered individually.
const AggregationLimit = 10

// SubWorkflowElement is the reserved element key for children of grouping
// states that have no repeated context element of their own.
const SubWorkflowElement = "__sub_workflow__"

// ProvisionNodeName is the display name of the synthetic infrastructure
// provisioning phase step collapsed by the post-render adjustment.
const ProvisionNodeName = "Provision Infrastructure"

type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{
		logger: logger.With("module", "graph_renderer"),
	}
}

// renderContext carries the two index maps and the exclusion set through one
// render request.
type renderContext struct {
	// prevMap answers "what ran after instance X": prev instance id to
	// its successor.
	prevMap map[string]*models.StateExecutionInstance

	// parentElements answers "which element chains live inside X":
	// parent instance id to element key to the first instance of that
	// element's chain.
	parentElements map[string]map[string]*models.StateExecutionInstance

	// exclude holds context-element entity ids rendered individually
	// instead of being bucketed into the aggregate node.
	exclude map[string]struct{}
}

// Render builds the node tree for one run from its instance collection.
// Rendering is deterministic for a fixed instance and exclusion set. A nil
// tree with nil error means the run has no instances yet.
func (r *Renderer) Render(
	instances map[string]*models.StateExecutionInstance,
	excludeFromAggregation map[string]struct{},
) (*models.GraphNode, error) {
	if len(instances) == 0 {
		return nil, nil
	}

	ctx := &renderContext{
		prevMap:        make(map[string]*models.StateExecutionInstance),
		parentElements: make(map[string]map[string]*models.StateExecutionInstance),
		exclude:        excludeFromAggregation,
	}

	var origin *models.StateExecutionInstance

	for _, instance := range instances {
		if instance.PrevInstanceID != "" {
			if _, claimed := ctx.prevMap[instance.PrevInstanceID]; claimed {
				return nil, fmt.Errorf("%w: two instances claim prev instance %s",
					ErrInconsistentGraph, instance.PrevInstanceID)
			}

			ctx.prevMap[instance.PrevInstanceID] = instance
		}

		if instance.ContextTransition && instance.ParentInstanceID != "" {
			elements := ctx.parentElements[instance.ParentInstanceID]
			if elements == nil {
				elements = make(map[string]*models.StateExecutionInstance)
				ctx.parentElements[instance.ParentInstanceID] = elements
			}

			elements[elementKey(instance)] = instance
		}

		if instance.PrevInstanceID == "" && instance.ParentInstanceID == "" {
			if origin != nil {
				return nil, fmt.Errorf("%w: multiple origin instances (%s, %s)",
					ErrInconsistentGraph, origin.ID, instance.ID)
			}

			origin = instance
		}
	}

	if origin == nil {
		return nil, fmt.Errorf("%w: no origin instance", ErrInconsistentGraph)
	}

	node, err := r.generateNodeTree(ctx, []*models.StateExecutionInstance{origin}, nil)
	if err != nil {
		return nil, err
	}

	return adjustInfrastructureNode(node), nil
}

// elementKey is the key an instance's chain is registered under inside its
// parent. Repeated and forked instances use the context element name;
// children of plain grouping states share the reserved sub-workflow key.
func elementKey(instance *models.StateExecutionInstance) string {
	if instance.ContextElement != nil && instance.ContextElement.Name != "" {
		return instance.ContextElement.Name
	}

	return SubWorkflowElement
}

// generateNodeTree converts one batch of instances into a node and follows
// the next-chain. A single-instance batch converts directly; a larger batch
// is an aggregation request and synthesizes one summary node.
//
// When carried is non-nil, each instance's execution data is folded into it,
// so an ancestor element node reflects its descendants' live status.
func (r *Renderer) generateNodeTree(
	ctx *renderContext,
	batch []*models.StateExecutionInstance,
	carried *models.ElementExecutionData,
) (*models.GraphNode, error) {
	lead := batch[0]

	for _, instance := range batch[1:] {
		if instance.DisplayName != lead.DisplayName ||
			instance.StateType != lead.StateType ||
			instance.Rollback != lead.Rollback {
			return nil, fmt.Errorf("%w: aggregation batch mixes %s %q with %s %q",
				ErrInconsistentGraph, lead.StateType, lead.DisplayName,
				instance.StateType, instance.DisplayName)
		}
	}

	if carried != nil {
		for _, instance := range batch {
			foldExecutionData(carried, instance)
		}
	}

	var node *models.GraphNode

	if len(batch) == 1 {
		node = ConvertToNode(lead)

		group, err := r.generateGroup(ctx, lead)
		if err != nil {
			return nil, err
		}

		node.Group = group
	} else {
		node = aggregateBatchNode(batch)
	}

	next, err := r.nextBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	if next != nil {
		nextNode, err := r.generateNodeTree(ctx, next, carried)
		if err != nil {
			return nil, err
		}

		node.Next = nextNode
	}

	return node, nil
}

// nextBatch advances the whole batch along the next-chain. Either every
// instance has a successor or none does; a partial mismatch is a defect.
func (r *Renderer) nextBatch(
	ctx *renderContext,
	batch []*models.StateExecutionInstance,
) ([]*models.StateExecutionInstance, error) {
	var next []*models.StateExecutionInstance

	for _, instance := range batch {
		successor := ctx.prevMap[instance.ID]
		if successor != nil {
			next = append(next, successor)
		}
	}

	if len(next) == 0 {
		return nil, nil
	}

	if len(next) != len(batch) {
		return nil, fmt.Errorf("%w: %d of %d instances in batch %q have a successor",
			ErrInconsistentGraph, len(next), len(batch), batch[0].DisplayName)
	}

	return next, nil
}

// generateGroup renders the child elements of a grouping instance, splitting
// repeated elements between individually-rendered ones and a single
// aggregate bucket once the aggregation limit is reached.
func (r *Renderer) generateGroup(
	ctx *renderContext,
	lead *models.StateExecutionInstance,
) (*models.GraphGroup, error) {
	children := ctx.parentElements[lead.ID]
	if len(children) == 0 {
		return nil, nil
	}

	group := &models.GraphGroup{
		ID:   uuid.New().String(),
		Name: lead.DisplayName,
	}

	keys := orderedElementKeys(lead, children)

	if lead.StateType == models.StateTypeFork {
		for _, key := range keys {
			child, err := r.generateNodeTree(ctx, []*models.StateExecutionInstance{children[key]}, nil)
			if err != nil {
				return nil, err
			}

			group.Elements = append(group.Elements, child)
		}

		return group, nil
	}

	var repeated []string

	for _, key := range keys {
		if key == SubWorkflowElement {
			child, err := r.generateNodeTree(ctx, []*models.StateExecutionInstance{children[key]}, nil)
			if err != nil {
				return nil, err
			}

			group.Elements = append(group.Elements, child)

			continue
		}

		repeated = append(repeated, key)
	}

	if len(repeated) == 0 {
		return group, nil
	}

	renderAll := len(repeated) < AggregationLimit && len(ctx.exclude) == 0

	var aggregated []*models.StateExecutionInstance

	for _, key := range repeated {
		first := children[key]

		individual := renderAll
		if !individual && first.ContextElement != nil {
			_, individual = ctx.exclude[first.ContextElement.UUID]
		}

		if !individual {
			aggregated = append(aggregated, first)

			continue
		}

		element, err := r.generateElementNode(ctx, key, first)
		if err != nil {
			return nil, err
		}

		group.Elements = append(group.Elements, element)
	}

	if len(aggregated) > 0 {
		bucket, err := r.generateNodeTree(ctx, aggregated, nil)
		if err != nil {
			return nil, err
		}

		bucket.Name = fmt.Sprintf("%d aggregated instances", len(aggregated))
		group.Elements = append(group.Elements, bucket)
	}

	return group, nil
}

// generateElementNode wraps one repeated element's sub-chain in a synthetic
// element node that carries the element's folded execution data.
func (r *Renderer) generateElementNode(
	ctx *renderContext,
	key string,
	first *models.StateExecutionInstance,
) (*models.GraphNode, error) {
	carried := &models.ElementExecutionData{}

	element := &models.GraphNode{
		ID:   uuid.New().String(),
		Name: key,
		Type: models.NodeTypeElement,
	}

	if first.ContextElement != nil {
		element.ID = first.ContextElement.UUID
	}

	child, err := r.generateNodeTree(ctx, []*models.StateExecutionInstance{first}, carried)
	if err != nil {
		return nil, err
	}

	if carried.Status == "" {
		carried.Status = models.StatusQueued
	}

	element.Next = child
	element.Status = carried.Status
	element.StartTs = carried.StartTs
	element.EndTs = carried.EndTs
	element.ExecutionDetails = carried

	return element, nil
}

// foldExecutionData merges one instance's execution data into the carried
// element data using the aggregation companions.
func foldExecutionData(carried *models.ElementExecutionData, instance *models.StateExecutionInstance) {
	data := instance.ExecutionData
	if data == nil {
		return
	}

	statuses := []models.ExecutionStatus{}
	if carried.Status != "" {
		statuses = append(statuses, carried.Status)
	}

	if data.DataStatus() != "" {
		statuses = append(statuses, data.DataStatus())
	}

	if aggregated, ok := status.Aggregate(statuses); ok {
		carried.Status = aggregated
	}

	carried.StartTs = status.AggregateStartTs(carried.StartTs, data.DataStartTs())
	carried.EndTs = status.AggregateEndTs(carried.EndTs, data.DataEndTs())

	if msg, ok := status.AggregateErrorMessage(carried.ErrorMsg, data.DataErrorMsg()); ok {
		carried.ErrorMsg = msg
	}
}

// ConvertToNode converts a single instance to its render node.
func ConvertToNode(instance *models.StateExecutionInstance) *models.GraphNode {
	return &models.GraphNode{
		ID:               instance.ID,
		Name:             instance.DisplayName,
		Type:             string(instance.StateType),
		Rollback:         instance.Rollback,
		Status:           instance.Status,
		StartTs:          instance.StartTs,
		EndTs:            instance.EndTs,
		ExecutionDetails: instance.ExecutionData,
	}
}

// aggregateBatchNode synthesizes the summary node of an aggregation batch,
// carrying a per-status count breakdown.
func aggregateBatchNode(batch []*models.StateExecutionInstance) *models.GraphNode {
	statuses := make([]models.ExecutionStatus, 0, len(batch))
	summary := make(map[models.ExecutionStatus]int)

	var startTimes, endTimes []*time.Time

	for _, instance := range batch {
		statuses = append(statuses, instance.Status)
		summary[instance.Status]++
		startTimes = append(startTimes, instance.StartTs)
		endTimes = append(endTimes, instance.EndTs)
	}

	node := &models.GraphNode{
		ID:               uuid.New().String(),
		Name:             fmt.Sprintf("%d aggregated instances", len(batch)),
		Type:             string(batch[0].StateType),
		Rollback:         batch[0].Rollback,
		ExecutionSummary: summary,
		StartTs:          status.AggregateStartTs(startTimes...),
		EndTs:            status.AggregateEndTs(endTimes...),
	}

	if aggregated, ok := status.Aggregate(statuses); ok {
		node.Status = aggregated
	}

	return node
}

// orderedElementKeys returns the child element keys in a deterministic
// order: the order declared by the parent's execution data where available,
// then any remaining keys sorted.
func orderedElementKeys(
	lead *models.StateExecutionInstance,
	children map[string]*models.StateExecutionInstance,
) []string {
	seen := make(map[string]struct{}, len(children))
	keys := make([]string, 0, len(children))

	appendKey := func(key string) {
		if _, dup := seen[key]; dup {
			return
		}

		if _, ok := children[key]; !ok {
			return
		}

		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if fork, ok := lead.ExecutionData.(*models.ForkExecutionData); ok {
		for _, name := range fork.Elements {
			appendKey(name)
		}
	}

	if provider, ok := lead.ExecutionData.(models.InstanceSummaryProvider); ok {
		for _, summary := range provider.InstanceSummaries() {
			appendKey(summary.InstanceName)
		}
	}

	if provider, ok := lead.ExecutionData.(models.ElementSummaryProvider); ok {
		for _, summary := range provider.ElementSummaries() {
			if summary.ContextElement != nil {
				appendKey(summary.ContextElement.Name)
			}
		}
	}

	rest := make([]string, 0, len(children))

	for key := range children {
		if _, dup := seen[key]; !dup {
			rest = append(rest, key)
		}
	}

	sort.Strings(rest)

	return append(keys, rest...)
}

// adjustInfrastructureNode collapses synthetic infrastructure provisioning
// phase steps that wrap exactly one group element, splicing the child
// directly into the surrounding chain. The adjustment is cosmetic, applied
// recursively over the whole tree, and idempotent.
func adjustInfrastructureNode(node *models.GraphNode) *models.GraphNode {
	if node == nil {
		return nil
	}

	for isCollapsibleInfraNode(node) {
		child := node.Group.Elements[0]

		tail := child
		for tail.Next != nil {
			tail = tail.Next
		}

		tail.Next = node.Next
		node = child
	}

	node.Next = adjustInfrastructureNode(node.Next)

	if node.Group != nil {
		for i, element := range node.Group.Elements {
			node.Group.Elements[i] = adjustInfrastructureNode(element)
		}
	}

	return node
}

func isCollapsibleInfraNode(node *models.GraphNode) bool {
	return node.Type == string(models.StateTypePhaseStep) &&
		node.Name == ProvisionNodeName &&
		node.Group != nil &&
		len(node.Group.Elements) == 1
}
