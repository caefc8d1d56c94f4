package market

import (
	"context"
	"fmt"
)

func requireNode(c Caller) error {
	if c.Node == "" {
		return newError(KindUnauthenticated, "operation requires a caller node")
	}
	return nil
}

func requireOracle(ctx context.Context, tx ReadTx, node NodeID) error {
	ok, err := tx.IsOracle(ctx, node)
	if err != nil {
		return fmt.Errorf("check oracle: %w", err)
	}
	if !ok {
		return newError(KindUnauthorized, "node %q is not an oracle", node)
	}
	return nil
}

// requireOracleAdmin aceita o instanciador do contrato ou um oráculo existente
func requireOracleAdmin(ctx context.Context, tx ReadTx, node NodeID) error {
	inst, ok, err := tx.Instantiator(ctx)
	if err != nil {
		return fmt.Errorf("load instantiator: %w", err)
	}
	if ok && inst == node {
		return nil
	}
	isOracle, err := tx.IsOracle(ctx, node)
	if err != nil {
		return fmt.Errorf("check oracle: %w", err)
	}
	if !isOracle {
		return newError(KindUnauthorized, "node %q may not add oracles", node)
	}
	return nil
}
