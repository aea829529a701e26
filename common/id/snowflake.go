package id

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator issues time-ordered unique ids. Give each process its own node id.
type Generator struct {
	node *snowflake.Node
}

func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) New() int64 {
	return g.node.Generate().Int64()
}

// NewString returns a new id in base 10, the form used for thread ids.
func (g *Generator) NewString() string {
	return g.node.Generate().String()
}
