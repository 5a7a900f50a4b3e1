package objectnet

import (
	"fmt"

	"objectnet/objectnet-go/pkg/channel"
	"objectnet/objectnet-go/pkg/crypto"
	"objectnet/objectnet-go/pkg/relay"
	"objectnet/objectnet-go/pkg/transport"
	"objectnet/objectnet-go/pkg/types"
)

// Cipher names accepted by UseEncryption
const (
	CipherSecretBox  = "secretbox"
	CipherChaChaPoly = "ChaChaPoly"
	CipherAESGCM     = "AESGCM"
)

// keyInfo is the HKDF context string for channel keys
const keyInfo = "objectnet channel key"

// ServerConfig returns a server channel configuration listening on host
func ServerConfig(id string, typ transport.Type, host string, tcpPort, udpPort int) channel.Config {
	cfg := channel.DefaultConfig()
	cfg.ID = id
	cfg.Direction = channel.DirectionServer
	cfg.TransportType = typ
	cfg.Address = channel.Address{Host: host, TCPPort: tcpPort, UDPPort: udpPort}
	return cfg
}

// ClientConfig returns a client channel configuration dialing host
func ClientConfig(id string, typ transport.Type, host string, tcpPort, udpPort int) channel.Config {
	cfg := channel.DefaultConfig()
	cfg.ID = id
	cfg.TransportType = typ
	cfg.Address = channel.Address{Host: host, TCPPort: tcpPort, UDPPort: udpPort}
	return cfg
}

// RelayServerConfig returns a server configuration whose session is s and
// whose received frames are relayed by a forwarder writing with mode. The
// forwarder is returned for its counters.
func RelayServerConfig(id string, typ transport.Type, host string, tcpPort, udpPort int, s *relay.Session, mode types.DeliveryMode) (channel.Config, *relay.Forwarder) {
	cfg := ServerConfig(id, typ, host, tcpPort, udpPort)
	cfg.Session = s
	fwd := relay.NewForwarder(s, mode, cfg.Logger)
	cfg.Callbacks.OnMessageReceived = fwd.OnMessage
	return cfg, fwd
}

// UseEncryption installs encrypt and decrypt hooks on cfg. The key is
// derived from secret with HKDF; both ends must use the same secret, salt
// and cipher.
func UseEncryption(cfg *channel.Config, cipher string, secret, salt []byte) error {
	key, err := crypto.DeriveKey(secret, salt, keyInfo)
	if err != nil {
		return types.ConfigurationError("use encryption", err)
	}

	switch cipher {
	case CipherSecretBox:
		box := crypto.NewSecretBox(key)
		cfg.Encrypt, cfg.Decrypt = box.Encrypt, box.Decrypt
	case CipherChaChaPoly, CipherAESGCM:
		nc, err := crypto.NewNoiseCipher(cipher, key)
		if err != nil {
			return types.ConfigurationError("use encryption", err)
		}
		cfg.Encrypt, cfg.Decrypt = nc.Encrypt, nc.Decrypt
	default:
		return types.ConfigurationError("use encryption", fmt.Errorf("%w: %s", crypto.ErrUnknownCipher, cipher))
	}
	cfg.Encryption = true
	return nil
}
