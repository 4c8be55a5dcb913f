package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 合约接口名称常量，必须与已部署合约完全一致
const (
	MethodCreateRandomZombie = "createRandomZombie"
	MethodZombies            = "zombies"
	EventNewZombie           = "NewZombie"
)

// FactoryABI ZombieFactory合约的接口描述
// 一个事件（参数均非indexed）和两个函数
const FactoryABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "zombieId", "type": "uint256"},
			{"indexed": false, "name": "name", "type": "string"},
			{"indexed": false, "name": "dna", "type": "uint256"}
		],
		"name": "NewZombie",
		"type": "event"
	},
	{
		"constant": false,
		"inputs": [{"name": "_name", "type": "string"}],
		"name": "createRandomZombie",
		"outputs": [],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "zombies",
		"outputs": [
			{"name": "name", "type": "string"},
			{"name": "dna", "type": "uint256"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// Schema 解析后的合约接口
type Schema struct {
	ABI     abi.ABI
	Address common.Address
}

// NewSchema 用内置ABI创建接口描述
func NewSchema(address string) (*Schema, error) {
	return newSchemaFromJSON(address, []byte(FactoryABI))
}

// NewSchemaFromArtifact 从编译产物JSON文件加载接口描述
// 支持完整编译输出（{"abi": [...]}）和裸ABI数组两种格式
func NewSchemaFromArtifact(address, artifactPath string) (*Schema, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("读取ABI文件失败 %s: %w", artifactPath, err)
	}

	raw, err := ExtractABI(data)
	if err != nil {
		return nil, err
	}
	return newSchemaFromJSON(address, raw)
}

// ExtractABI 从编译产物内容中提取ABI数组
func ExtractABI(data []byte) ([]byte, error) {
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		return compiledOutput.ABI, nil
	}

	// 不是完整编译输出，按裸ABI数组校验
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("解析ABI失败: %w", err)
	}
	return data, nil
}

func newSchemaFromJSON(address string, rawABI []byte) (*Schema, error) {
	parsedABI, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("解析ABI失败: %w", err)
	}

	addr := strings.TrimSpace(address)
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("无效的合约地址: %q", address)
	}

	return &Schema{
		ABI:     parsedABI,
		Address: common.HexToAddress(addr),
	}, nil
}

// NewZombieEventID 创建事件的topic0
func (s *Schema) NewZombieEventID() common.Hash {
	return s.ABI.Events[EventNewZombie].ID
}
