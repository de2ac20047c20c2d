package parallel_test

import (
	"context"
	"fmt"

	"github.com/vnykmshr/threadpool/pkg/scheduling/parallel"
)

func ExampleFor() {
	squares := make([]int, 8)

	err := parallel.For(context.Background(), len(squares), func(i int) error {
		squares[i] = i * i
		return nil
	}, parallel.WithThreads(4))

	fmt.Println(squares, err)

	// Output:
	// [0 1 4 9 16 25 36 49] <nil>
}
