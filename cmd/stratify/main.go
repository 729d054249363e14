package main

import (
	stratify "github.com/namirgarib/population-stratification-pca"
)

func main() {
	stratify.Main()
}
