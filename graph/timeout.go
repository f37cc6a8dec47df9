package graph

import (
	"context"
	"fmt"
	"time"
)

// getNodeTimeout resolves timeout precedence: per-node policy override,
// then the engine-wide default, then "no timeout".
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout wraps a single node execution with timeout
// enforcement, per spec §5 ("per-agent timeouts... Node-level timeout is
// not otherwise enforced by the engine" — this is that enforcement).
func executeNodeWithTimeout(
	ctx context.Context,
	node Node,
	nodeID string,
	state ExecutionState,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) (NodeResult, error) {
	timeout := getNodeTimeout(policy, defaultTimeout)

	if timeout == 0 {
		return node.Run(ctx, state), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}

	return result, nil
}
