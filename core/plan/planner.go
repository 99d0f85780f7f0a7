package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cyfko/filterql/core/projection"
	"go.uber.org/zap"
)

// CollectionPlan describes one child query of an execution plan: the
// collection path it populates, the inverse reference used to key child
// rows by parent ID, the child row schema, and the per-parent pagination
// and sorting applied inside each parent bucket.
type CollectionPlan struct {
	Depth      int
	Path       string
	ParentPath string
	DtoName    string

	ParentEntity    string
	ElementEntity   string
	ParentRefField  string
	ElementIDFields []string
	ElementIDSlots  []int

	Schema       *FieldSchema
	SlotInParent int

	LimitPerParent  int
	OffsetPerParent int
	SortSlots       []int
	SortDesc        []bool
}

// AggregatePlan describes one grouped sub-query resolving a reduced
// computed-field dependency: reduce Field over the Entity rows belonging
// to each parent, keyed by ParentRefField.
type AggregatePlan struct {
	Path           string
	Entity         string
	Field          string
	ParentRefField string
	Reducer        Reducer
}

// ComputedPlan binds a computed field to its slots: the output slot in the
// root schema and, per dependency, either a scalar input slot or the -1
// sentinel paired with an aggregate sub-query.
type ComputedPlan struct {
	Field           ComputedField
	OutputSlot      int
	DependencySlots []int
	Aggregates      []*AggregatePlan
}

// ExecutionPlan is the depth-ordered, schema-bearing description of the
// root query, one child query per collection path and the computed-field
// evaluation. Plans are immutable once built and may be shared across
// threads; each plan exclusively owns its schemas.
type ExecutionPlan struct {
	RootEntity   string
	RootSchema   *FieldSchema
	RootIDFields []string
	RootIDSlots  []int
	Collections  []*CollectionPlan
	Computed     []*ComputedPlan
}

// CollectionAt returns the plan for a collection path, if any.
func (p *ExecutionPlan) CollectionAt(path string) *CollectionPlan {
	for _, c := range p.Collections {
		if c.Path == path {
			return c
		}
	}
	return nil
}

// Planner turns a parsed projection spec plus a metamodel snapshot into an
// ExecutionPlan rooted at one entity.
type Planner struct {
	meta   MetamodelSnapshot
	logger *zap.Logger
}

// NewPlanner creates a planner over a metamodel snapshot.
func NewPlanner(meta MetamodelSnapshot, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{meta: meta, logger: logger}
}

// collGroup accumulates the projected content of one collection path while
// the tree is being assembled.
type collGroup struct {
	path       string
	parentPath string
	depth      int
	fields     []string
	subNames   []string
}

// Build assembles the execution plan. Computed fields are activated when
// their name appears in the projection; every other projected path is
// resolved against the metamodel, partitioned into scalar and
// collection-bearing paths, and grouped by depth into child query plans.
func (p *Planner) Build(rootEntity string, spec *projection.Spec, computed []ComputedField) (*ExecutionPlan, error) {
	computedByName := make(map[string]ComputedField, len(computed))
	for _, cf := range computed {
		computedByName[cf.Name] = cf
	}

	var scalarPaths []string
	var activeComputed []ComputedField
	groups := map[string]*collGroup{}
	var groupOrder []string

	ensureGroup := func(path, parentPath string, depth int) *collGroup {
		g, ok := groups[path]
		if !ok {
			g = &collGroup{path: path, parentPath: parentPath, depth: depth}
			groups[path] = g
			groupOrder = append(groupOrder, path)
			if parentPath != "" {
				parent := groups[parentPath]
				parent.subNames = append(parent.subNames, strings.TrimPrefix(path, parentPath+"."))
			}
		}
		return g
	}

	for _, path := range spec.Fields {
		if cf, ok := computedByName[path]; ok {
			activeComputed = append(activeComputed, cf)
			continue
		}
		resolution, err := p.resolvePath(rootEntity, path)
		if err != nil {
			return nil, err
		}
		if resolution.IsScalar() {
			scalarPaths = append(scalarPaths, path)
			continue
		}
		var parentPath string
		var innermost *collGroup
		for depth, segIdx := range resolution.CollectionSegments {
			collPath := strings.Join(resolution.Segments[:segIdx+1], ".")
			innermost = ensureGroup(collPath, parentPath, depth+1)
			parentPath = collPath
		}
		lastSeg := resolution.CollectionSegments[len(resolution.CollectionSegments)-1]
		if remainder := strings.Join(resolution.Segments[lastSeg+1:], "."); remainder != "" {
			innermost.fields = append(innermost.fields, remainder)
		}
	}

	// Collections without an explicit projection entry can still be named
	// by per-collection options; reject those instead of silently planning
	// an empty child query.
	for path := range spec.Collections {
		if _, ok := groups[path]; !ok {
			return nil, &projection.DefinitionError{Spec: path, Message: "options declared for a collection that is not projected"}
		}
	}

	// Root schema: user scalars first, then always-present root IDs, then
	// computed outputs and their scalar dependency slots.
	rootBuilder := NewSchemaBuilder()
	for _, path := range scalarPaths {
		rootBuilder.AddField(path, path, false)
	}
	rootIDs, err := p.meta.IDFields(rootEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to read id fields of %s: %w", rootEntity, err)
	}
	if len(rootIDs) == 0 {
		return nil, fmt.Errorf("entity %s declares no id fields", rootEntity)
	}
	for _, id := range rootIDs {
		rootBuilder.AddField(id, id, true)
	}

	var computedPlans []*ComputedPlan
	for _, cf := range activeComputed {
		cp := &ComputedPlan{Field: cf, OutputSlot: rootBuilder.AddComputed(cf.Name)}
		for _, dep := range cf.Dependencies {
			if dep.Reducer == "" {
				resolution, err := p.resolvePath(rootEntity, dep.Path)
				if err != nil {
					return nil, &projection.DefinitionError{Spec: cf.Name, Message: fmt.Sprintf("unknown computed-field dependency %q", dep.Path)}
				}
				if !resolution.IsScalar() {
					return nil, &projection.DefinitionError{Spec: cf.Name, Message: fmt.Sprintf("dependency %q traverses a collection; declare a reducer", dep.Path)}
				}
				cp.DependencySlots = append(cp.DependencySlots, rootBuilder.AddField(dep.Path, dep.Path, true))
				cp.Aggregates = append(cp.Aggregates, nil)
				continue
			}
			agg, err := p.buildAggregate(rootEntity, cf, dep)
			if err != nil {
				return nil, err
			}
			cp.DependencySlots = append(cp.DependencySlots, -1)
			cp.Aggregates = append(cp.Aggregates, agg)
		}
		computedPlans = append(computedPlans, cp)
	}

	for _, path := range groupOrder {
		if groups[path].parentPath == "" {
			rootBuilder.AddCollection(path)
		}
	}
	rootSchema := rootBuilder.Build()

	rootIDSlots := make([]int, len(rootIDs))
	for i, id := range rootIDs {
		slot, _ := rootSchema.IndexOfEntity(id)
		rootIDSlots[i] = slot
	}

	// Depth-ascending, declaration-stable order guarantees every parent
	// schema exists before its children are synthesized.
	sort.SliceStable(groupOrder, func(a, b int) bool {
		return groups[groupOrder[a]].depth < groups[groupOrder[b]].depth
	})

	plan := &ExecutionPlan{
		RootEntity:   rootEntity,
		RootSchema:   rootSchema,
		RootIDFields: rootIDs,
		RootIDSlots:  rootIDSlots,
		Computed:     computedPlans,
	}

	schemas := map[string]*FieldSchema{"": rootSchema}
	for _, path := range groupOrder {
		group := groups[path]
		collectionPlan, err := p.buildCollectionPlan(rootEntity, group, spec, schemas)
		if err != nil {
			return nil, err
		}
		schemas[path] = collectionPlan.Schema
		plan.Collections = append(plan.Collections, collectionPlan)
	}

	p.finalize(plan)
	return plan, nil
}

// finalize writes the serialization-excluded slot sets: engine-added ID
// slots never reach the materialized output.
func (p *Planner) finalize(plan *ExecutionPlan) {
	markInternal := func(s *FieldSchema) {
		for i := 0; i < s.FieldCount(); i++ {
			if s.IsInternal(i) {
				s.Exclude(i)
			}
		}
	}
	markInternal(plan.RootSchema)
	for _, c := range plan.Collections {
		markInternal(c.Schema)
	}
}

func (p *Planner) buildCollectionPlan(rootEntity string, group *collGroup, spec *projection.Spec, schemas map[string]*FieldSchema) (*CollectionPlan, error) {
	parentEntity, err := p.entityAt(rootEntity, group.parentPath)
	if err != nil {
		return nil, err
	}
	relative := group.path
	if group.parentPath != "" {
		relative = strings.TrimPrefix(group.path, group.parentPath+".")
	}
	elementEntity, parentRef, err := p.resolveCollectionRef(parentEntity, relative)
	if err != nil {
		return nil, err
	}

	elementIDs, err := p.meta.IDFields(elementEntity)
	if err != nil {
		return nil, fmt.Errorf("failed to read id fields of %s: %w", elementEntity, err)
	}

	builder := NewSchemaBuilder()
	for _, field := range group.fields {
		builder.AddField(field, field, false)
	}
	for _, id := range elementIDs {
		builder.AddField(id, id, true)
	}
	for _, sub := range group.subNames {
		builder.AddCollection(sub)
	}
	schema := builder.Build()

	idSlots := make([]int, len(elementIDs))
	for i, id := range elementIDs {
		slot, _ := schema.IndexOfEntity(id)
		idSlots[i] = slot
	}

	dtoName := relative
	parentSchema := schemas[group.parentPath]
	slotInParent := parentSchema.IndexOfDto(dtoName)
	if !slotInParent.IsCollection {
		return nil, fmt.Errorf("collection %s has no slot in its parent schema", group.path)
	}

	collectionPlan := &CollectionPlan{
		Depth:           group.depth,
		Path:            group.path,
		ParentPath:      group.parentPath,
		DtoName:         dtoName,
		ParentEntity:    parentEntity,
		ElementEntity:   elementEntity,
		ParentRefField:  parentRef,
		ElementIDFields: elementIDs,
		ElementIDSlots:  idSlots,
		Schema:          schema,
		SlotInParent:    slotInParent.Index,
	}

	if options := spec.Collections[group.path]; options != nil {
		collectionPlan.LimitPerParent = options.Size
		if options.Size > 0 {
			collectionPlan.OffsetPerParent = options.Page * options.Size
		}
		for _, sortSpec := range options.Sort {
			slot := 0
			if idx, ok := schema.IndexOfEntity(sortSpec.Field); ok {
				slot = idx
			} else if di := schema.IndexOfDto(sortSpec.Field); di.Index >= 0 && !di.IsCollection {
				slot = di.Index
			} else {
				p.logger.Debug("Sort field not in child schema, falling back to slot 0",
					zap.String("collection", group.path), zap.String("field", sortSpec.Field))
			}
			collectionPlan.SortSlots = append(collectionPlan.SortSlots, slot)
			collectionPlan.SortDesc = append(collectionPlan.SortDesc, sortSpec.Direction == "desc")
		}
	}
	return collectionPlan, nil
}

// entityAt walks a collection path and returns the element entity at its
// end; the empty path is the root entity.
func (p *Planner) entityAt(rootEntity, collectionPath string) (string, error) {
	if collectionPath == "" {
		return rootEntity, nil
	}
	cur := rootEntity
	for _, seg := range strings.Split(collectionPath, ".") {
		md, ok := p.meta.Field(cur, seg)
		if !ok || !md.IsCollection {
			return "", fmt.Errorf("path %s does not navigate collections of %s", collectionPath, rootEntity)
		}
		cur = md.RelatedEntity
	}
	return cur, nil
}

// resolveCollectionRef resolves a collection field of the parent entity
// into its element entity and the inverse reference field on the element:
// the declared mappedBy when present, else a back-reference field typed as
// the parent, else the lowercased parent entity name.
func (p *Planner) resolveCollectionRef(parentEntity, field string) (string, string, error) {
	md, ok := p.meta.Field(parentEntity, field)
	if !ok || !md.IsCollection {
		return "", "", &projection.DefinitionError{Spec: field, Message: fmt.Sprintf("entity %s has no collection %q", parentEntity, field)}
	}
	element := md.RelatedEntity
	if md.MappedBy != "" {
		return element, md.MappedBy, nil
	}
	for name, fm := range p.meta.Fields(element) {
		if !fm.IsCollection && fm.RelatedEntity == parentEntity {
			return element, name, nil
		}
	}
	return element, strings.ToLower(parentEntity), nil
}

// buildAggregate synthesizes the grouped sub-query plan for one reduced
// dependency. Reduced dependencies must traverse exactly one collection
// segment; the sub-query is keyed by the collection's parent reference.
func (p *Planner) buildAggregate(rootEntity string, cf ComputedField, dep Dependency) (*AggregatePlan, error) {
	resolution, err := p.resolvePath(rootEntity, dep.Path)
	if err != nil {
		return nil, &projection.DefinitionError{Spec: cf.Name, Message: fmt.Sprintf("unknown computed-field dependency %q", dep.Path)}
	}
	if len(resolution.CollectionSegments) != 1 {
		return nil, &projection.DefinitionError{Spec: cf.Name, Message: fmt.Sprintf("reduced dependency %q must traverse exactly one collection", dep.Path)}
	}
	segIdx := resolution.CollectionSegments[0]
	collectionField := strings.Join(resolution.Segments[:segIdx+1], ".")
	element, parentRef, err := p.resolveCollectionRef(rootEntity, collectionField)
	if err != nil {
		return nil, err
	}
	field := strings.Join(resolution.Segments[segIdx+1:], ".")
	if field == "" && dep.Reducer != ReducerCount {
		return nil, &projection.DefinitionError{Spec: cf.Name, Message: fmt.Sprintf("reducer %s requires a field, dependency %q names none", dep.Reducer, dep.Path)}
	}
	return &AggregatePlan{
		Path:           dep.Path,
		Entity:         element,
		Field:          field,
		ParentRefField: parentRef,
		Reducer:        dep.Reducer,
	}, nil
}

// resolvePath walks a dotted path from the root entity, recording the
// segments that navigate to-many relations. Once an embedded object is
// entered the remaining segments are accepted as an opaque scalar suffix.
func (p *Planner) resolvePath(rootEntity, path string) (*PathResolution, error) {
	segments := strings.Split(path, ".")
	resolution := &PathResolution{Path: path, Segments: segments}
	cur := rootEntity
	for i, seg := range segments {
		md, ok := p.meta.Field(cur, seg)
		if !ok {
			return nil, &projection.DefinitionError{Spec: path, Message: fmt.Sprintf("unknown field %q on entity %s", seg, cur)}
		}
		if md.IsCollection {
			resolution.CollectionSegments = append(resolution.CollectionSegments, i)
			cur = md.RelatedEntity
			continue
		}
		if md.IsObject {
			// Embedded objects accept arbitrary scalar suffixes.
			break
		}
		if i != len(segments)-1 {
			return nil, &projection.DefinitionError{Spec: path, Message: fmt.Sprintf("field %q of entity %s does not support nested paths", seg, cur)}
		}
	}
	return resolution, nil
}
