package market

import "context"

// MarketCount é o próximo id de mercado, ou seja, o total de mercados criados
func (m *Machine) MarketCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		n, err = tx.NextMarketID(ctx)
		return err
	})
	return n, err
}

func (m *Machine) Market(ctx context.Context, id uint64) (Market, error) {
	var mk Market
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		mk, err = loadMarket(ctx, tx, id)
		return err
	})
	return mk, err
}

func (m *Machine) StakeOf(ctx context.Context, key StakeKey) (uint64, error) {
	var amount uint64
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		amount, err = tx.Stake(ctx, key)
		return err
	})
	return amount, err
}

func (m *Machine) Stakes(ctx context.Context, marketID uint64, outcome uint32) ([]StakeRecord, error) {
	var out []StakeRecord
	err := m.store.View(ctx, func(tx ReadTx) error {
		mk, err := loadMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if err := checkOutcome(mk, outcome); err != nil {
			return err
		}
		out, err = tx.ScanStakes(ctx, marketID, outcome)
		return err
	})
	return out, err
}

func (m *Machine) WinningOutcome(ctx context.Context, marketID uint64) (uint32, bool, error) {
	var (
		outcome uint32
		ok      bool
	)
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		outcome, ok, err = tx.WinningOutcome(ctx, marketID)
		return err
	})
	return outcome, ok, err
}

func (m *Machine) Oracles(ctx context.Context) ([]NodeID, error) {
	var out []NodeID
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		out, err = tx.Oracles(ctx)
		return err
	})
	return out, err
}

func (m *Machine) Subscribers(ctx context.Context) ([]NodeID, error) {
	var out []NodeID
	err := m.store.View(ctx, func(tx ReadTx) error {
		var err error
		out, err = tx.Subscribers(ctx)
		return err
	})
	return out, err
}
