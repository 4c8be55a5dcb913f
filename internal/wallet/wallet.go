package wallet

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Wallet 签名身份提供者
// 网关每次写调用时按需解析签名者，不缓存解锁状态
type Wallet struct {
	keystoreDir  string
	account      common.Address
	passwordFile string
	chainID      *big.Int
	logger       *logrus.Logger
}

// New 创建钱包提供者
func New(keystoreDir, account, passwordFile string, chainID int64, logger *logrus.Logger) (*Wallet, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("无效的账户地址: %q", account)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("无效的链ID: %d", chainID)
	}

	return &Wallet{
		keystoreDir:  keystoreDir,
		account:      common.HexToAddress(account),
		passwordFile: passwordFile,
		chainID:      big.NewInt(chainID),
		logger:       logger,
	}, nil
}

// Address 签名账户地址
func (w *Wallet) Address() common.Address {
	return w.account
}

// TransactOpts 解析一次性的交易签名选项
// 每次调用都重新打开keystore并解密私钥，不缓存解锁状态
func (w *Wallet) TransactOpts() (*bind.TransactOpts, error) {
	ks := keystore.NewKeyStore(w.keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	account, err := ks.Find(accounts.Account{Address: w.account})
	if err != nil {
		return nil, fmt.Errorf("keystore中找不到账户 %s: %w", w.account.Hex(), err)
	}

	password, err := w.readPassword()
	if err != nil {
		return nil, err
	}

	keyFile, err := os.Open(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("打开密钥文件失败: %w", err)
	}
	defer keyFile.Close()

	opts, err := bind.NewTransactorWithChainID(keyFile, password, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("创建交易签名器失败: %w", err)
	}

	w.logger.Debugf("已解析签名身份: %s", account.Address.Hex())
	return opts, nil
}

// readPassword 从口令文件读取keystore口令
func (w *Wallet) readPassword() (string, error) {
	if w.passwordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(w.passwordFile)
	if err != nil {
		return "", fmt.Errorf("读取口令文件失败: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
