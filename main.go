package main

import "github.com/shuangxiangkan/PyCTrace/cmd"

func main() {
	cmd.Execute()
}
