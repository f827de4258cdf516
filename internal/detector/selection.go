package detector

import (
	"math/rand/v2"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

// pickTarget draws one node uniformly from the nodes that expose shard ports
// and then one of its ports uniformly. No probe history is taken into account.
func pickTarget(nodes []models.Node, rnd *rand.Rand) (models.Node, string, bool) {
	eligible := make([]int, 0, len(nodes))
	for i, node := range nodes {
		if node.Eligible() {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return models.Node{}, "", false
	}
	node := nodes[eligible[rnd.IntN(len(eligible))]].Clone()
	port := node.ShardPorts[rnd.IntN(len(node.ShardPorts))]
	return node, node.ShardAddr(port), true
}
