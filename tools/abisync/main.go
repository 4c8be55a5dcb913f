// abisync 从合约编译产物同步ABI
// 读取Truffle/Hardhat编译输出的JSON，校验其中的ABI片段，
// 生成携带ABI常量的Go源文件，保持客户端与合约定义一致
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sirupsen/logrus"

	"zombiefactory/internal/contract"
)

var (
	artifactPath = flag.String("artifact", "", "合约编译产物路径 (必填)")
	outputPath   = flag.String("out", "internal/contract/abi_gen.go", "生成的Go源文件路径")
	packageName  = flag.String("package", "contract", "生成文件的包名")
	constName    = flag.String("const", "GeneratedABI", "ABI常量名")
	checkOnly    = flag.Bool("check", false, "只校验ABI，不生成文件")
)

const fileTemplate = `// Code generated by abisync from {{.Artifact}}; DO NOT EDIT.

package {{.Package}}

// {{.Const}} 合约编译产物中的ABI定义
// 同步时间: {{.Timestamp}}
const {{.Const}} = ` + "`{{.ABI}}`" + `
`

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *artifactPath == "" {
		logger.Fatal("必须指定 --artifact 参数")
	}

	if err := run(logger); err != nil {
		logger.Fatalf("同步失败: %v", err)
	}
}

func run(logger *logrus.Logger) error {
	data, err := os.ReadFile(*artifactPath)
	if err != nil {
		return fmt.Errorf("读取编译产物失败: %w", err)
	}

	rawABI, err := contract.ExtractABI(data)
	if err != nil {
		return fmt.Errorf("提取ABI失败: %w", err)
	}

	parsed, err := abi.JSON(bytes.NewReader(rawABI))
	if err != nil {
		return fmt.Errorf("ABI无法解析: %w", err)
	}

	// 确认客户端依赖的方法和事件存在
	required := []string{contract.MethodCreateRandomZombie, contract.MethodZombies}
	for _, method := range required {
		if _, ok := parsed.Methods[method]; !ok {
			return fmt.Errorf("ABI缺少方法: %s", method)
		}
	}
	if _, ok := parsed.Events[contract.EventNewZombie]; !ok {
		return fmt.Errorf("ABI缺少事件: %s", contract.EventNewZombie)
	}

	logger.Infof("ABI校验通过: %d 个方法, %d 个事件", len(parsed.Methods), len(parsed.Events))

	if *checkOnly {
		return nil
	}

	// 规范化缩进，保持生成文件稳定
	var compact bytes.Buffer
	if err := json.Compact(&compact, rawABI); err != nil {
		return fmt.Errorf("压缩ABI失败: %w", err)
	}

	tmpl, err := template.New("abi").Parse(fileTemplate)
	if err != nil {
		return err
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer out.Close()

	err = tmpl.Execute(out, map[string]string{
		"Artifact":  *artifactPath,
		"Package":   *packageName,
		"Const":     *constName,
		"Timestamp": time.Now().Format(time.RFC3339),
		"ABI":       compact.String(),
	})
	if err != nil {
		return fmt.Errorf("生成文件失败: %w", err)
	}

	logger.Infof("已生成 %s", *outputPath)
	return nil
}
