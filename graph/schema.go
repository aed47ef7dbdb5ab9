package graph

import (
	"fmt"

	"github.com/hupe1980/hybridgo/metadata"
)

// Label is a node label from the closed schema.
type Label string

// Node labels covering common life and work domains.
const (
	LabelPerson   Label = "Person"
	LabelEvent    Label = "Event"
	LabelEmotion  Label = "Emotion"
	LabelInterest Label = "Interest"
	LabelLocation Label = "Location"
	LabelMemory   Label = "Memory"
	LabelTopic    Label = "Topic"

	LabelProject   Label = "Project"
	LabelTask      Label = "Task"
	LabelDocument  Label = "Document"
	LabelMeeting   Label = "Meeting"
	LabelConcept   Label = "Concept"
	LabelMilestone Label = "Milestone"
	LabelIssue     Label = "Issue"

	// LabelEntity is the generic fallback label with no required properties.
	LabelEntity Label = "Entity"
)

// Relation is a relation type from the closed schema.
type Relation string

// Relation types.
const (
	RelationKnows        Relation = "KNOWS"
	RelationFamily       Relation = "FAMILY"
	RelationFriend       Relation = "FRIEND"
	RelationAttends      Relation = "ATTENDS"
	RelationFeels        Relation = "FEELS"
	RelationInterestedIn Relation = "INTERESTED_IN"
	RelationHappenedAt   Relation = "HAPPENED_AT"
	RelationLocatedIn    Relation = "LOCATED_IN"
	RelationRemembers    Relation = "REMEMBERS"
	RelationDiscusses    Relation = "DISCUSSES"
	RelationRelatesTo    Relation = "RELATES_TO"

	RelationWorksOn      Relation = "WORKS_ON"
	RelationDependsOn    Relation = "DEPENDS_ON"
	RelationBelongsTo    Relation = "BELONGS_TO"
	RelationReferences   Relation = "REFERENCES"
	RelationAssignedTo   Relation = "ASSIGNED_TO"
	RelationParticipates Relation = "PARTICIPATES"
	RelationContains     Relation = "CONTAINS"
	RelationBlocks       Relation = "BLOCKS"
	RelationMentions     Relation = "MENTIONS"
	RelationAchieves     Relation = "ACHIEVES"

	RelationLinkedTo  Relation = "LINKED_TO"
	RelationCreatedBy Relation = "CREATED_BY"
)

// NodeDef constrains nodes of one label.
type NodeDef struct {
	// Required lists property keys every node of this label must carry.
	Required []string
}

// Endpoint is an allowed (source label, target label) pair for a relation.
type Endpoint struct {
	Source Label
	Target Label
}

// RelationDef constrains edges of one relation type.
type RelationDef struct {
	// Endpoints lists allowed label pairs. Empty allows any combination
	// of known labels.
	Endpoints []Endpoint
}

// Schema is a closed catalog of node labels and relation types. It is
// supplied at store construction and never changes afterwards.
type Schema struct {
	// Version identifies the catalog revision, for deployments that swap
	// schemas over time.
	Version   string
	Nodes     map[Label]NodeDef
	Relations map[Relation]RelationDef
}

// Validate checks the catalog itself: at least one label must be
// defined and every relation endpoint must reference a known label.
func (s *Schema) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: schema defines no node labels", ErrSchemaViolation)
	}

	for relation, def := range s.Relations {
		for _, ep := range def.Endpoints {
			if _, ok := s.Nodes[ep.Source]; !ok {
				return fmt.Errorf("%w: relation %s references unknown source label %s", ErrSchemaViolation, relation, ep.Source)
			}
			if _, ok := s.Nodes[ep.Target]; !ok {
				return fmt.Errorf("%w: relation %s references unknown target label %s", ErrSchemaViolation, relation, ep.Target)
			}
		}
	}
	return nil
}

// ValidateNode checks label membership and required properties.
func (s *Schema) ValidateNode(label Label, props metadata.Document) error {
	def, ok := s.Nodes[label]
	if !ok {
		return &ErrUnknownLabel{Label: label}
	}

	var missing []string
	for _, key := range def.Required {
		if _, exists := props[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ErrMissingProperties{Label: label, Properties: missing}
	}
	return nil
}

// ValidateEdge checks relation membership and endpoint labels.
func (s *Schema) ValidateEdge(relation Relation, source, target Label) error {
	def, ok := s.Relations[relation]
	if !ok {
		return &ErrUnknownRelation{Relation: relation}
	}

	if len(def.Endpoints) == 0 {
		return nil
	}
	for _, ep := range def.Endpoints {
		if ep.Source == source && ep.Target == target {
			return nil
		}
	}
	return &ErrEndpointNotAllowed{Relation: relation, Source: source, Target: target}
}

// DefaultSchema returns the built-in catalog of life and work labels
// with their required properties and endpoint constraints.
func DefaultSchema() *Schema {
	personToPerson := []Endpoint{{LabelPerson, LabelPerson}}

	return &Schema{
		Version: "1",
		Nodes: map[Label]NodeDef{
			LabelPerson:   {Required: []string{"name"}},
			LabelEvent:    {Required: []string{"title", "date"}},
			LabelEmotion:  {Required: []string{"type", "intensity"}},
			LabelInterest: {Required: []string{"name"}},
			LabelLocation: {Required: []string{"name"}},
			LabelMemory:   {Required: []string{"content"}},
			LabelTopic:    {Required: []string{"name"}},

			LabelProject:   {Required: []string{"name"}},
			LabelTask:      {Required: []string{"title", "status"}},
			LabelDocument:  {Required: []string{"title"}},
			LabelMeeting:   {Required: []string{"title", "date"}},
			LabelConcept:   {Required: []string{"name"}},
			LabelMilestone: {Required: []string{"title", "target_date"}},
			LabelIssue:     {Required: []string{"title", "status"}},

			LabelEntity: {},
		},
		Relations: map[Relation]RelationDef{
			RelationKnows:        {Endpoints: personToPerson},
			RelationFamily:       {Endpoints: personToPerson},
			RelationFriend:       {Endpoints: personToPerson},
			RelationAttends:      {Endpoints: []Endpoint{{LabelPerson, LabelEvent}}},
			RelationFeels:        {Endpoints: []Endpoint{{LabelPerson, LabelEmotion}}},
			RelationInterestedIn: {Endpoints: []Endpoint{{LabelPerson, LabelInterest}}},
			RelationHappenedAt:   {Endpoints: []Endpoint{{LabelEvent, LabelLocation}}},
			RelationLocatedIn:    {Endpoints: []Endpoint{{LabelLocation, LabelLocation}}},
			RelationRemembers:    {Endpoints: []Endpoint{{LabelPerson, LabelMemory}}},
			RelationDiscusses:    {Endpoints: []Endpoint{{LabelPerson, LabelTopic}}},
			RelationRelatesTo:    {},

			RelationWorksOn: {Endpoints: []Endpoint{
				{LabelPerson, LabelProject},
				{LabelPerson, LabelTask},
			}},
			RelationDependsOn:  {Endpoints: []Endpoint{{LabelTask, LabelTask}}},
			RelationBelongsTo:  {Endpoints: []Endpoint{{LabelTask, LabelProject}}},
			RelationReferences: {Endpoints: []Endpoint{
				{LabelDocument, LabelDocument},
				{LabelDocument, LabelConcept},
			}},
			RelationAssignedTo: {Endpoints: []Endpoint{{LabelTask, LabelPerson}}},
			RelationParticipates: {Endpoints: []Endpoint{
				{LabelPerson, LabelMeeting},
				{LabelPerson, LabelProject},
			}},
			RelationContains: {Endpoints: []Endpoint{{LabelProject, LabelTask}}},
			RelationBlocks:   {Endpoints: []Endpoint{{LabelIssue, LabelTask}}},
			RelationMentions: {Endpoints: []Endpoint{{LabelDocument, LabelEntity}}},
			RelationAchieves: {Endpoints: []Endpoint{{LabelTask, LabelMilestone}}},

			RelationLinkedTo:  {},
			RelationCreatedBy: {},
		},
	}
}
