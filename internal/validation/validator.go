package validation

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"zombiefactory/internal/errors"
)

const (
	// MaxNameBytes 僵尸名称最大字节数
	MaxNameBytes = 64
)

// 验证失败错误码
const (
	CodeNameEmpty      = "NAME_EMPTY"
	CodeNameTooLong    = "NAME_TOO_LONG"
	CodeAddressInvalid = "ADDRESS_INVALID"
	CodeIDInvalid      = "ID_INVALID"
)

// ValidateName 验证僵尸名称
// 名称校验发生在CLI和API入口，合约网关对名称透传不做检查
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewFactoryError(
			errors.ErrorTypeConfig,
			errors.SeverityLow,
			CodeNameEmpty,
			"僵尸名称不能为空",
		)
	}

	if len(name) > MaxNameBytes {
		return errors.NewFactoryError(
			errors.ErrorTypeConfig,
			errors.SeverityLow,
			CodeNameTooLong,
			"僵尸名称过长",
		).WithContext("max_bytes", MaxNameBytes).WithContext("actual_bytes", len(name))
	}

	return nil
}

// ValidateAddress 验证以太坊地址格式
func ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return errors.NewFactoryError(
			errors.ErrorTypeConfig,
			errors.SeverityMedium,
			CodeAddressInvalid,
			"无效的以太坊地址",
		).WithContext("address", address)
	}
	return nil
}

// ParseZombieID 解析僵尸ID参数
func ParseZombieID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errors.WrapError(err,
			errors.ErrorTypeConfig,
			errors.SeverityLow,
			CodeIDInvalid,
			"无效的僵尸ID",
		).WithContext("raw", raw)
	}
	return id, nil
}
