package main

import (
	"bufio"
	"context"
	"io"

	"solva-wallet/internal/cli"
	"solva-wallet/internal/config"
	"solva-wallet/internal/logger"
	"solva-wallet/internal/wallet"
)

// accountLoader returns the function the connect command uses to obtain
// the signing account. A configured hex key wins over a keystore file; with
// neither, the key is read from the terminal.
func accountLoader(cfg config.WalletConfig, reader *bufio.Reader, out io.Writer) cli.AccountLoader {
	return func(ctx context.Context) (wallet.Account, error) {
		acct, err := loadAccount(cfg, out)
		if err != nil {
			logger.GetLogger().Error().Err(err).Msg("Error loading wallet account")
			return nil, err
		}

		logger.GetLogger().Info().
			Str("address", acct.Address().Hex()).
			Bool("confirmSignatures", cfg.ConfirmSigns).
			Msg("Wallet account loaded")

		if !cfg.ConfirmSigns {
			return acct, nil
		}
		return wallet.NewConfirmingAccount(acct, cli.NewTerminalConfirmer(reader, out)), nil
	}
}

func loadAccount(cfg config.WalletConfig, out io.Writer) (wallet.Account, error) {
	switch {
	case cfg.PrivateKey != "":
		return wallet.FromHex(cfg.PrivateKey)
	case cfg.KeystorePath != "":
		passphrase, err := cli.GetSecret("Keystore passphrase", out)
		if err != nil {
			return nil, err
		}
		return wallet.FromKeystore(cfg.KeystorePath, passphrase)
	default:
		key, err := cli.GetSecret("Private key (hex)", out)
		if err != nil {
			return nil, err
		}
		return wallet.FromHex(key)
	}
}
