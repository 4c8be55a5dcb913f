package traits

import (
	"math/big"
	"strconv"

	"zombiefactory/pkg/models"
)

// 特征取模范围，与合约端素材数量一致
const (
	headVariants  = 7
	eyeVariants   = 11
	shirtVariants = 6
)

// Derive 由(id, name, dna)派生僵尸视觉特征
// 纯函数：六个数值特征只由dna决定，name原样透传，不做任何校验
func Derive(id uint64, name string, dna *big.Int) *models.ZombieDetails {
	padded := models.PadDNA(dna)

	return &models.ZombieDetails{
		ZombieID:           id,
		HeadChoice:         segmentMod(padded, 0, headVariants) + 1,
		EyeChoice:          segmentMod(padded, 2, eyeVariants) + 1,
		ShirtChoice:        segmentMod(padded, 4, shirtVariants) + 1,
		SkinColorChoice:    segmentHue(padded, 6),
		EyeColorChoice:     segmentHue(padded, 8),
		ClothesColorChoice: segmentHue(padded, 10),
		// 第[12,16)位数字为保留位，当前不参与任何特征
		ZombieName:        name,
		ZombieDescription: models.ZombieDescription,
	}
}

// segmentValue 取两位数字片段的十进制值
func segmentValue(padded string, offset int) int {
	// padded保证为16位纯数字，Atoi不会失败
	v, _ := strconv.Atoi(padded[offset : offset+2])
	return v
}

// segmentMod 特征选择：片段值对素材数量取模
func segmentMod(padded string, offset, variants int) int {
	return segmentValue(padded, offset) % variants
}

// segmentHue 颜色特征：片段值[0,99]映射到色相角度[0,359]
func segmentHue(padded string, offset int) int {
	return segmentValue(padded, offset) * 360 / 100
}
