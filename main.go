// main.go (プロジェクトルート)
package main

import (
	"github.com/shouni/gemini-site-kit/cmd"
)

func main() {
	cmd.Execute()
}
