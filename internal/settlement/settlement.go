// Package settlement calcula o rateio proporcional de um mercado resolvido.
package settlement

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"sort"

	"github.com/shopspring/decimal"
)

// Pool define de onde sai o prêmio distribuído aos apostadores vencedores
type Pool string

const (
	PoolTotal  Pool = "total"  // parimutuel: soma de todas as apostas do mercado
	PoolLosing Pool = "losing" // soma das apostas nos resultados perdedores
	PoolFixed  Pool = "fixed"  // prêmio fixo configurado
)

type Policy struct {
	Pool       Pool
	FixedPrize uint64
}

// ParsePool converte o valor de configuração PAYOUT_POOL
func ParsePool(s string) (Pool, error) {
	switch p := Pool(s); p {
	case PoolTotal, PoolLosing, PoolFixed:
		return p, nil
	case "":
		return PoolTotal, nil
	default:
		return "", fmt.Errorf("unknown payout pool %q", s)
	}
}

// SaturatingAdd soma sem overflow: satura em math.MaxUint64
func SaturatingAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}

func Sum(v []uint64) uint64 {
	var total uint64
	for _, x := range v {
		total = SaturatingAdd(total, x)
	}
	return total
}

type Stake struct {
	Node   string
	Amount uint64
}

type Payout struct {
	Beneficiary string
	Amount      uint64
}

// PoolSize resolve o tamanho do prêmio para o resultado vencedor
func (p Policy) PoolSize(totals []uint64, winner uint32) uint64 {
	switch p.Pool {
	case PoolFixed:
		return p.FixedPrize
	case PoolLosing:
		var losing uint64
		for i, t := range totals {
			if uint32(i) != winner {
				losing = SaturatingAdd(losing, t)
			}
		}
		return losing
	default:
		return Sum(totals)
	}
}

// Compute rateia o prêmio entre os registros de aposta no resultado vencedor:
// floor(stake * pool / totals[winner]). Sem apostas no vencedor não há pagamentos.
// O resultado sai ordenado por nó e omite valores zero.
func Compute(p Policy, totals []uint64, winner uint32, stakes []Stake) []Payout {
	if int(winner) >= len(totals) || totals[winner] == 0 {
		return nil
	}
	pool := toDecimal(p.PoolSize(totals, winner))
	winning := toDecimal(totals[winner])

	sorted := append([]Stake(nil), stakes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Node < sorted[j].Node })

	var out []Payout
	for _, s := range sorted {
		if s.Amount == 0 {
			continue
		}
		q, _ := toDecimal(s.Amount).Mul(pool).QuoRem(winning, 0)
		amount := fromDecimal(q)
		if amount == 0 {
			continue
		}
		out = append(out, Payout{Beneficiary: s.Node, Amount: amount})
	}
	return out
}

func toDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func fromDecimal(d decimal.Decimal) uint64 {
	b := d.BigInt()
	if b.Sign() <= 0 {
		return 0
	}
	if !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}
