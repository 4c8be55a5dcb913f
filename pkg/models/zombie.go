package models

import (
	"fmt"
	"math/big"
)

// ZombieDescription 所有一级僵尸的固定描述
const ZombieDescription = "A Level 1 CryptoZombie"

// DNADigits DNA十进制表示的固定位数
const DNADigits = 16

// ZombieRecord 链上存储的僵尸记录
// 仅由创建交易写入，客户端视角只读
type ZombieRecord struct {
	Name string   `json:"name"`
	DNA  *big.Int `json:"dna"`
}

// DNAString 返回补零到16位的DNA十进制字符串
func (r *ZombieRecord) DNAString() string {
	return PadDNA(r.DNA)
}

// PadDNA 将DNA渲染为左侧补'0'的16位十进制字符串
// 超过16位时只保留低16位十进制数字
func PadDNA(dna *big.Int) string {
	if dna == nil {
		dna = big.NewInt(0)
	}
	mod := new(big.Int).Exp(big.NewInt(10), big.NewInt(DNADigits), nil)
	trimmed := new(big.Int).Mod(dna, mod)
	return fmt.Sprintf("%016s", trimmed.String())
}

// ZombieDetails 由(id, name, dna)按需派生的视觉特征
// 不落盘，每次重新计算
type ZombieDetails struct {
	ZombieID           uint64 `json:"zombie_id"`
	HeadChoice         int    `json:"head_choice"`          // [1,7]
	EyeChoice          int    `json:"eye_choice"`           // [1,11]
	ShirtChoice        int    `json:"shirt_choice"`         // [1,6]
	SkinColorChoice    int    `json:"skin_color_choice"`    // [0,359] 色相角度
	EyeColorChoice     int    `json:"eye_color_choice"`     // [0,359]
	ClothesColorChoice int    `json:"clothes_color_choice"` // [0,359]
	ZombieName         string `json:"zombie_name"`
	ZombieDescription  string `json:"zombie_description"`
}
