package costmodel

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/predarb/internal/domain"
)

const (
	// DefaultGasUnits is the typical cost of one settlement order.
	DefaultGasUnits int64 = 150_000

	// defaultGasPriceGwei is assumed when no live price is available.
	defaultGasPriceGwei = 30.0

	// defaultNativePriceUSD is the fallback USD price of the network's
	// native token when no oracle value is supplied.
	defaultNativePriceUSD = 1.0
)

// GasPricer supplies the current network gas price in gwei. Implementations
// may fail; the GasModel absorbs failures with a conservative default.
type GasPricer interface {
	GasPriceGwei(ctx context.Context) (float64, error)
}

// EthGasPricer reads the suggested gas price from an Ethereum-compatible
// RPC endpoint.
type EthGasPricer struct {
	client *ethclient.Client
}

// NewEthGasPricer dials the RPC endpoint and returns a pricer bound to it.
func NewEthGasPricer(rpcURL string) (*EthGasPricer, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthGasPricer{client: client}, nil
}

// GasPriceGwei fetches the node's suggested gas price and converts wei to
// gwei.
func (p *EthGasPricer) GasPriceGwei(ctx context.Context) (float64, error) {
	wei, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	gwei := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei))
	out, _ := gwei.Float64()
	return out, nil
}

// Close releases the underlying RPC connection.
func (p *EthGasPricer) Close() {
	p.client.Close()
}

// GasModel converts gas units into USD. It never returns an error: when
// the pricer is absent or unavailable it falls back to a conservative
// constant estimate.
type GasModel struct {
	pricer         GasPricer // optional
	nativePriceUSD float64
	logger         *slog.Logger
}

// NewGasModel creates a GasModel. pricer may be nil (defaults only);
// nativePriceUSD <= 0 installs the default oracle value.
func NewGasModel(pricer GasPricer, nativePriceUSD float64, logger *slog.Logger) *GasModel {
	if nativePriceUSD <= 0 {
		nativePriceUSD = defaultNativePriceUSD
	}
	return &GasModel{
		pricer:         pricer,
		nativePriceUSD: nativePriceUSD,
		logger:         logger.With(slog.String("component", "gas_model")),
	}
}

// Estimate computes the USD cost of gasUnits at gasPriceGwei. A nil
// gasPriceGwei triggers a live fetch; fetch failure falls back to the
// default without erroring. gasUnits <= 0 uses DefaultGasUnits.
func (m *GasModel) Estimate(ctx context.Context, gasUnits int64, gasPriceGwei *float64) domain.GasEstimate {
	if gasUnits <= 0 {
		gasUnits = DefaultGasUnits
	}

	gwei := defaultGasPriceGwei
	switch {
	case gasPriceGwei != nil:
		gwei = *gasPriceGwei
	case m.pricer != nil:
		fetched, err := m.pricer.GasPriceGwei(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "gas_model: gas price fetch failed, using default",
				slog.Float64("default_gwei", defaultGasPriceGwei),
				slog.String("error", err.Error()),
			)
		} else {
			gwei = fetched
		}
	}

	costWei := float64(gasUnits) * gwei * 1e9
	costNative := costWei / 1e18
	costUSD := costNative * m.nativePriceUSD

	return domain.GasEstimate{
		GasUnits:       gasUnits,
		GasPriceGwei:   gwei,
		CostNative:     costNative,
		CostUSD:        costUSD,
		NativePriceUSD: m.nativePriceUSD,
	}
}
