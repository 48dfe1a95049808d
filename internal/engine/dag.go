package engine

import (
	"fmt"

	"github.com/shaiso/Stagehand/internal/domain"
)

// CommonPrefix — префикс узлов общих стадий.
const CommonPrefix = "common:"

// Node — узел графа стадий.
type Node struct {
	// ID — идентификатор узла: "install" или "common:install".
	ID string

	// Stage — имя стадии.
	Stage domain.StageName

	// Common — true для стадий общего описания (common).
	Common bool

	// Def — описание стадии. Nil, если стадия не описана
	// (узел есть, но действий нет).
	Def *domain.StageDef

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — граф стадий одного flavor'а вместе с общими стадиями.
//
// Рёбра:
//   - common:X → X для каждой стадии X;
//   - depends_on внутри описания: common:dep → common:X и dep → X.
type DAG struct {
	// Nodes — все узлы графа (ID → Node).
	Nodes map[string]*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node

	// nodes — узлы в порядке добавления (для детерминированного обхода).
	nodes []*Node
}

// NodeID возвращает ID узла стадии.
func NodeID(stage domain.StageName, common bool) string {
	if common {
		return CommonPrefix + string(stage)
	}
	return string(stage)
}

// BuildPlan строит граф стадий flavor'а.
//
// common может быть nil — тогда у стадий нет общих предпосылок.
func BuildPlan(common, flavor *domain.FlavorSpec) (*DAG, error) {
	dag := &DAG{Nodes: make(map[string]*Node)}

	// Первый проход: узлы для всех стадий (common первыми)
	if common != nil {
		for _, stage := range domain.AllStages {
			dag.addNode(stage, true, stageDef(common, stage))
		}
	}
	for _, stage := range domain.AllStages {
		dag.addNode(stage, false, stageDef(flavor, stage))
	}

	// Второй проход: рёбра
	for _, stage := range domain.AllStages {
		node := dag.Nodes[NodeID(stage, false)]

		if common != nil {
			commonNode := dag.Nodes[NodeID(stage, true)]
			dag.addEdge(commonNode, node)

			if err := dag.linkDependencies(commonNode); err != nil {
				return nil, err
			}
		}

		if err := dag.linkDependencies(node); err != nil {
			return nil, err
		}
	}

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

func stageDef(spec *domain.FlavorSpec, stage domain.StageName) *domain.StageDef {
	if spec == nil {
		return nil
	}
	def, ok := spec.Stages[stage]
	if !ok {
		return nil
	}
	return &def
}

// addNode добавляет узел в DAG.
func (d *DAG) addNode(stage domain.StageName, common bool, def *domain.StageDef) {
	node := &Node{
		ID:     NodeID(stage, common),
		Stage:  stage,
		Common: common,
		Def:    def,
	}
	d.Nodes[node.ID] = node
	d.nodes = append(d.nodes, node)
}

// linkDependencies связывает узел с его depends_on (в пределах того же
// описания).
func (d *DAG) linkDependencies(node *Node) error {
	if node.Def == nil {
		return nil
	}

	for _, dep := range node.Def.DependsOn {
		if dep == node.Stage {
			return NewValidationError(node.ID, "depends_on",
				"stage depends on itself", ErrSelfDependency)
		}

		depNode, exists := d.Nodes[NodeID(dep, node.Common)]
		if !exists {
			return NewValidationError(node.ID, "depends_on",
				fmt.Sprintf("depends on unknown stage: %s", dep), ErrMissingDependency)
		}

		d.addEdge(depNode, node)
	}

	return nil
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.nodes))
	queue := make([]*Node, 0)

	for _, node := range d.nodes {
		inDegree[node.ID] = node.InDegree
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(d.nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Sequence возвращает узлы, которые нужно выполнить для стадии:
// все её предпосылки в топологическом порядке и саму стадию последней.
func (d *DAG) Sequence(stage domain.StageName) ([]*Node, error) {
	target, ok := d.Nodes[NodeID(stage, false)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	needed := map[string]bool{}
	var visit func(n *Node)
	visit = func(n *Node) {
		if needed[n.ID] {
			return
		}
		needed[n.ID] = true
		for _, dep := range n.DependsOn {
			visit(dep)
		}
	}
	visit(target)

	seq := make([]*Node, 0, len(needed))
	for _, node := range d.Order {
		if needed[node.ID] {
			seq = append(seq, node)
		}
	}
	return seq, nil
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
