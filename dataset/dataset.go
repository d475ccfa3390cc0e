package dataset

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Austin-Williams/cid-accumulator-client/blockclient"
	"github.com/Austin-Williams/cid-accumulator-client/chain"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/config"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/mmr"
	"github.com/Austin-Williams/cid-accumulator-client/reconcile"
	"github.com/Austin-Williams/cid-accumulator-client/storage"
)

// Dataset is the top-level handle a caller opens, starts, and
// eventually shuts down. Read access goes through Data.
type Dataset struct {
	store    storage.Store
	engine   *mmr.Mmr
	pipeline *reconcile.Pipeline
	data     *Data
}

// Open constructs every collaborator cfg describes, restores the
// in-memory MMR from whatever storage already holds, and returns a
// Dataset ready for Start. It does not itself start the backward sweep
// or live sync — call Start for that.
func Open(ctx context.Context, cfg config.Options) (*Dataset, error) {
	const op = "dataset.Open"

	if cfg.Chain.RPCURL == "" {
		return nil, accerr.Newf(accerr.ConfigError, op, "chain.rpc_url is required")
	}
	if cfg.Chain.ContractAddress == "" {
		return nil, accerr.Newf(accerr.ConfigError, op, "chain.contract_address is required")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, accerr.New(accerr.ConfigError, op, err)
	}

	chainClient, err := buildChainClient(cfg)
	if err != nil {
		if closeErr := store.Close(ctx); closeErr != nil {
			logging.Sugar.Warnw("dataset.Open: storage close after chain wiring failure", "err", closeErr)
		}
		return nil, accerr.New(accerr.ConfigError, op, err)
	}

	blocks := blockclient.New(blockclient.Options{
		GatewayURL:          cfg.BlockService.GatewayURL,
		WriteURL:            cfg.BlockService.WriteURL,
		PinEndpoint:         pinEndpoint(cfg),
		ProvideEndpoint:     cfg.BlockService.ProvideEndpoint,
		PinMinDelay:         cfg.Pin.MinDelay,
		PinFailureThreshold: cfg.Pin.FailureThreshold,
	})

	engine := mmr.New()
	pipeline := reconcile.New(chainClient, blocks, store, engine, reconcile.Options{
		RangeSize:          cfg.Sweep.RangeSize,
		PollInterval:       cfg.Live.PollInterval,
		SubscribeProbeWait: cfg.Live.SubscribeProbeWait,
	})

	if err := pipeline.RestoreFromStorage(ctx); err != nil {
		if closeErr := store.Close(ctx); closeErr != nil {
			logging.Sugar.Warnw("dataset.Open: storage close after restore failure", "err", closeErr)
		}
		return nil, accerr.New(accerr.Invariant, op, err)
	}

	ds := &Dataset{store: store, engine: engine, pipeline: pipeline}
	ds.data = &Data{store: store, engine: engine, pipeline: pipeline}
	return ds, nil
}

func pinEndpoint(cfg config.Options) string {
	if !cfg.Pin.Enabled {
		return ""
	}
	return cfg.Pin.Endpoint
}

func openStore(ctx context.Context, cfg config.Options) (storage.Store, error) {
	var store storage.Store
	switch cfg.Storage.Backend {
	case config.StorageLevelDB:
		store = storage.NewLevelDB(cfg.Storage.Path)
	case config.StorageJSON:
		store = storage.NewJSONFile(cfg.Storage.Path)
	case config.StorageMemory, "":
		store = storage.NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err := store.Open(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildChainClient(cfg config.Options) (*chain.Client, error) {
	if !common.IsHexAddress(cfg.Chain.ContractAddress) {
		return nil, fmt.Errorf("chain.contract_address %q is not a valid address", cfg.Chain.ContractAddress)
	}
	address := common.HexToAddress(cfg.Chain.ContractAddress)

	inner := chain.NewHTTPTransport(cfg.Chain.RPCURL, &http.Client{})
	throttled := chain.NewThrottled(inner, chain.ThrottleOptions{
		MinDelay:      cfg.Retry.MinDelay,
		MaxRetries:    cfg.Retry.MaxRetries,
		BackoffFactor: cfg.Retry.BackoffFactor,
	})

	client := chain.New(throttled, address)
	if cfg.Chain.RootCIDCallData != "" {
		b, err := hexToBytesLoose(cfg.Chain.RootCIDCallData)
		if err != nil {
			return nil, fmt.Errorf("chain.root_cid_calldata: %w", err)
		}
		client.RootCIDCallData = b
	}
	if cfg.Chain.StateCallData != "" {
		b, err := hexToBytesLoose(cfg.Chain.StateCallData)
		if err != nil {
			return nil, fmt.Errorf("chain.state_calldata: %w", err)
		}
		client.StateCallData = b
	}
	if cfg.Chain.EventTopicOverride != "" {
		if !common.IsHexAddress(cfg.Chain.EventTopicOverride) && len(cfg.Chain.EventTopicOverride) != 66 {
			return nil, fmt.Errorf("chain.event_topic_override: expected a 32-byte hex hash")
		}
		client.EventTopic = common.HexToHash(cfg.Chain.EventTopicOverride)
	}
	return client, nil
}

func hexToBytesLoose(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// Data returns the read-side view of the dataset.
func (ds *Dataset) Data() *Data { return ds.data }

// Start runs the backward historical sweep once, then begins forward
// live sync. It returns once the sweep completes and live sync has
// been launched in the background.
func (ds *Dataset) Start(ctx context.Context) error {
	if err := ds.pipeline.SyncBackwardsFromLatest(ctx); err != nil {
		return err
	}
	return ds.pipeline.StartLiveSync(ctx)
}

// StopLiveSync ends forward live sync without closing storage, per
// spec.md §6's sync.stop_live_sync().
func (ds *Dataset) StopLiveSync() {
	ds.pipeline.StopLiveSync()
}

// Shutdown stops live sync, then closes storage, per spec.md §5's
// shutdown sequence.
func (ds *Dataset) Shutdown(ctx context.Context) error {
	ds.pipeline.StopLiveSync()
	return ds.store.Close(ctx)
}
