package config

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/stake-plus/postoracle/src/data"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 12
	DefaultReceiptPoll     = 2 * time.Second
	DefaultConfirmTimeout  = 5 * time.Minute
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultOraclePath      = "/store-content"
	DefaultIPFSGateway     = "https://gateway.pinata.cloud/ipfs/"
)

// ConfigurationError is returned at startup when required settings are absent or malformed.
type ConfigurationError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	for _, key := range sortedKeys(e.Invalid) {
		parts = append(parts, fmt.Sprintf("invalid %s: %s", key, e.Invalid[key]))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Wallet selects the signing account. Both forms empty means no wallet is available.
type Wallet struct {
	PrivateKey  string
	KeystoreDir string
	Passphrase  string
	Account     string
}

type Discord struct {
	Token     string
	ChannelID string
}

type Config struct {
	ContractAddress string
	RPCURL          string
	OracleURL       string
	OraclePath      string
	ChainID         int64
	ABIPath         string

	PollInterval    time.Duration
	PollMaxAttempts int
	ReceiptPoll     time.Duration
	ConfirmTimeout  time.Duration
	HTTPTimeout     time.Duration
	IPFSGateway     string
	StrictEvents    bool

	Wallet Wallet

	Port            string
	JWTSecret       string
	CORSOrigins     []string
	SubmitPerMinute int
	TLSCertFile     string
	TLSKeyFile      string

	RedisURL string
	Discord  Discord
	Metrics  bool

	// settings that were present but could not be parsed
	invalid map[string]string
}

// Load reads .env, overlays the optional settings table and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional

	if dsn, ok := data.MySQLDSN(); ok {
		if _, err := data.OpenSettings(dsn); err != nil {
			log.Printf("config: settings database unavailable, using env only: %v", err)
		}
	}

	cfg := FromSettings()
	return cfg, cfg.Validate()
}

// FromSettings builds a Config from the settings cache and environment without validating it.
func FromSettings() Config {
	invalid := map[string]string{}
	chainID := int64(0)
	if raw := GetSetting("chain_id", "CHAIN_ID", ""); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			chainID = v
		} else {
			invalid["CHAIN_ID"] = "not an integer"
		}
	}

	return Config{
		ContractAddress: GetSetting("contract_address", "CONTRACT_ADDRESS", ""),
		RPCURL:          GetSetting("rpc_url", "RPC_URL", ""),
		OracleURL:       strings.TrimRight(GetSetting("oracle_url", "ORACLE_URL", ""), "/"),
		OraclePath:      GetSetting("oracle_path", "ORACLE_PATH", DefaultOraclePath),
		ChainID:         chainID,
		ABIPath:         GetSetting("contract_abi_path", "CONTRACT_ABI_PATH", ""),

		PollInterval:    getDurationSetting("poll_interval", "POLL_INTERVAL", DefaultPollInterval, invalid),
		PollMaxAttempts: getIntSetting("poll_max_attempts", "POLL_MAX_ATTEMPTS", DefaultPollMaxAttempts, invalid),
		ReceiptPoll:     getDurationSetting("tx_receipt_poll", "TX_RECEIPT_POLL", DefaultReceiptPoll, invalid),
		ConfirmTimeout:  getDurationSetting("tx_confirm_timeout", "TX_CONFIRM_TIMEOUT", DefaultConfirmTimeout, invalid),
		HTTPTimeout:     getDurationSetting("http_timeout", "HTTP_TIMEOUT", DefaultHTTPTimeout, invalid),
		IPFSGateway:     GetSetting("ipfs_gateway_url", "IPFS_GATEWAY_URL", DefaultIPFSGateway),
		StrictEvents:    getBoolSetting("strict_events", "STRICT_EVENTS", false, invalid),

		Wallet: Wallet{
			// Key material is never read from the settings table.
			PrivateKey:  GetSetting("", "WALLET_PRIVATE_KEY", ""),
			KeystoreDir: GetSetting("", "WALLET_KEYSTORE_DIR", ""),
			Passphrase:  GetSetting("", "WALLET_PASSPHRASE", ""),
			Account:     GetSetting("wallet_account", "WALLET_ACCOUNT", ""),
		},

		Port:            GetSetting("port", "PORT", "8080"),
		JWTSecret:       GetSetting("", "JWT_SECRET", ""),
		CORSOrigins:     parseCSV(GetSetting("cors_origins", "CORS_ORIGINS", "http://localhost:3000")),
		SubmitPerMinute: getIntSetting("submit_per_minute", "SUBMIT_PER_MINUTE", 10, invalid),
		TLSCertFile:     GetSetting("tls_cert_file", "TLS_CERT_FILE", ""),
		TLSKeyFile:      GetSetting("tls_key_file", "TLS_KEY_FILE", ""),

		RedisURL: GetSetting("redis_url", "REDIS_URL", ""),
		Discord: Discord{
			Token:     GetSetting("", "DISCORD_TOKEN", ""),
			ChannelID: GetSetting("discord_channel_id", "DISCORD_CHANNEL_ID", ""),
		},
		Metrics: getBoolSetting("enable_metrics", "ENABLE_METRICS", true, invalid),

		invalid: invalid,
	}
}

// Validate checks the three values the pipeline cannot run without plus basic formats.
// Settings that failed to parse are reported too; their defaults are never used silently.
func (c Config) Validate() error {
	cerr := &ConfigurationError{Invalid: map[string]string{}}
	for key, reason := range c.invalid {
		cerr.Invalid[key] = reason
	}

	required := []struct{ key, val string }{
		{"CONTRACT_ADDRESS", c.ContractAddress},
		{"RPC_URL", c.RPCURL},
		{"ORACLE_URL", c.OracleURL},
	}
	for _, r := range required {
		if r.val == "" {
			cerr.Missing = append(cerr.Missing, r.key)
		}
	}

	if c.ContractAddress != "" && !common.IsHexAddress(c.ContractAddress) {
		cerr.Invalid["CONTRACT_ADDRESS"] = "not a hex address"
	}
	if c.OracleURL != "" && !strings.HasPrefix(c.OracleURL, "http://") && !strings.HasPrefix(c.OracleURL, "https://") {
		cerr.Invalid["ORACLE_URL"] = "must be an http(s) URL"
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		cerr.Invalid["TLS_CERT_FILE"] = "TLS_CERT_FILE and TLS_KEY_FILE must be set together"
	}
	if c.Discord.Token != "" && c.Discord.ChannelID == "" {
		cerr.Invalid["DISCORD_CHANNEL_ID"] = "required when DISCORD_TOKEN is set"
	}

	if len(cerr.Missing) == 0 && len(cerr.Invalid) == 0 {
		return nil
	}
	return cerr
}

// Contract returns the parsed contract address. Call after Validate.
func (c Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// OracleEndpoint joins the oracle base URL and path.
func (c Config) OracleEndpoint() string {
	path := c.OraclePath
	if path == "" {
		path = DefaultOraclePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.OracleURL + path
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
