package analysis

// betweenness runs Brandes' algorithm on an unweighted undirected graph given
// as ascending adjacency lists. Scores are normalised by (n-1)(n-2), which
// for undirected graphs equals the pair fraction over (n-1)(n-2)/2 pairs.
// Unreachable pairs contribute nothing.
func betweenness(adj [][]int) []float64 {
	n := len(adj)
	cb := make([]float64, n)
	if n <= 2 {
		return cb
	}

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		stack = stack[:0]
		queue = queue[:0]

		sigma[s] = 1
		dist[s] = 0
		queue = append(queue, s)

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	scale := 1 / float64((n-1)*(n-2))
	for i := range cb {
		cb[i] *= scale
	}
	return cb
}
