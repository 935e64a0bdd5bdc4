// Package id hands out the snowflake IDs used for document runs. Run IDs are
// time-ordered, so run artifacts sort chronologically by filename.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the generator node. The server and worker use distinct node
// IDs so their runs never collide.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns the next unique int64 ID.
func New() int64 {
	return node.Generate().Int64()
}
